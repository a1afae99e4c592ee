// internal/search/agent/rules.go
package agent

import (
	"regexp"
	"strconv"
	"strings"

	"search-orchestrator/internal/models"
)

// The rule path is always available; the external NLU service only
// overrides it when configured and healthy.

var (
	// "go to ganesh sweet mart and order paneer"
	goToRe = regexp.MustCompile(`(?i)\bgo to (.+?) and (?:order|get|buy) (.+)$`)
	// "order paneer from ganesh sweet mart"
	orderFromRe = regexp.MustCompile(`(?i)\border (.+?) from (.+)$`)

	nearMeRe  = regexp.MustCompile(`(?i)\b(?:near me|nearby|close by)\b`)
	openNowRe = regexp.MustCompile(`(?i)\b(?:open now|currently open|open right now)\b`)

	nonVegRe = regexp.MustCompile(`(?i)\bnon[\s-]?veg(?:etarian)?\b`)
	vegRe    = regexp.MustCompile(`(?i)\b(?:pure veg|veg only|veg|vegetarian)\b`)

	ratingRe = regexp.MustCompile(`(?i)\b(?:rating|rated)\s*(?:above|over|at least|of|>)?\s*([0-9](?:\.[0-9])?)\b`)
	starRe   = regexp.MustCompile(`(?i)\b([0-9](?:\.[0-9])?)\s*star(?:s)?\b`)

	priceBetweenRe = regexp.MustCompile(`(?i)\bbetween\s*(?:rs\.?|₹)?\s*(\d+)\s*and\s*(?:rs\.?|₹)?\s*(\d+)\b`)
	priceUnderRe   = regexp.MustCompile(`(?i)\b(?:under|below|less than|within)\s*(?:rs\.?|₹)?\s*(\d+)\b`)
	priceAboveRe   = regexp.MustCompile(`(?i)\b(?:above|over|more than)\s*(?:rs\.?|₹)?\s*(\d+)\b`)

	spacesRe = regexp.MustCompile(`\s+`)
)

// verticalKeywords maps trigger words to a module type. First match in
// text order wins.
var verticalKeywords = map[string]models.ModuleType{
	"restaurant":  models.ModuleFood,
	"food":        models.ModuleFood,
	"breakfast":   models.ModuleFood,
	"lunch":       models.ModuleFood,
	"dinner":      models.ModuleFood,
	"snacks":      models.ModuleFood,
	"grocery":     models.ModuleRetail,
	"groceries":   models.ModuleRetail,
	"pharmacy":    models.ModuleRetail,
	"medicine":    models.ModuleRetail,
	"medicines":   models.ModuleRetail,
	"hotel":       models.ModuleRooms,
	"room":        models.ModuleRooms,
	"rooms":       models.ModuleRooms,
	"salon":       models.ModuleServices,
	"cleaning":    models.ModuleServices,
	"plumber":     models.ModuleServices,
	"electrician": models.ModuleServices,
	"movie":       models.ModuleMovies,
	"movies":      models.ModuleMovies,
	"cinema":      models.ModuleMovies,
}

// storeTargetWords flip the target to stores: the user wants places,
// not items.
var storeTargetWords = []string{"restaurants", "stores", "shops", "outlets", "places"}

// defaultNearMeRadiusKm applies when "near me" is detected with a geo
// point present.
const defaultNearMeRadiusKm = 5.0

// RuleParser is the regex/keyword SearchPlan extractor.
type RuleParser struct {
	// Brands is the known-brand dictionary; matched case-insensitively
	// as whole phrases.
	Brands []string
}

// Parse turns free text into a structured plan. It never fails: text it
// cannot interpret stays in the query field.
func (p *RuleParser) Parse(text string, geo *models.GeoPoint) *models.SearchPlan {
	plan := &models.SearchPlan{
		Target: models.TargetItems,
		Geo:    geo,
	}
	remaining := strings.TrimSpace(text)

	// Store extraction first: the store phrase must not leak into the
	// other matchers.
	if m := goToRe.FindStringSubmatch(remaining); m != nil {
		plan.StoreName = normalizePhrase(m[1])
		remaining = m[2]
	} else if m := orderFromRe.FindStringSubmatch(remaining); m != nil {
		plan.StoreName = normalizePhrase(m[2])
		remaining = m[1]
	}

	if nearMeRe.MatchString(remaining) {
		remaining = nearMeRe.ReplaceAllString(remaining, " ")
		if geo != nil && !geo.IsZero() {
			plan.RadiusKm = defaultNearMeRadiusKm
		}
	}

	if openNowRe.MatchString(remaining) {
		remaining = openNowRe.ReplaceAllString(remaining, " ")
		plan.OpenNow = true
	}

	// Non-veg must be checked before veg; "non-veg" contains "veg".
	if nonVegRe.MatchString(remaining) {
		remaining = nonVegRe.ReplaceAllString(remaining, " ")
		plan.Veg = models.NonVegOnly
	} else if vegRe.MatchString(remaining) {
		remaining = vegRe.ReplaceAllString(remaining, " ")
		plan.Veg = models.VegOnly
	}

	if m := ratingRe.FindStringSubmatch(remaining); m != nil {
		remaining = ratingRe.ReplaceAllString(remaining, " ")
		plan.RatingMin = parseFloat(m[1])
	} else if m := starRe.FindStringSubmatch(remaining); m != nil {
		remaining = starRe.ReplaceAllString(remaining, " ")
		plan.RatingMin = parseFloat(m[1])
	}

	if m := priceBetweenRe.FindStringSubmatch(remaining); m != nil {
		remaining = priceBetweenRe.ReplaceAllString(remaining, " ")
		plan.PriceMin = parseFloat(m[1])
		plan.PriceMax = parseFloat(m[2])
	} else {
		if m := priceUnderRe.FindStringSubmatch(remaining); m != nil {
			remaining = priceUnderRe.ReplaceAllString(remaining, " ")
			plan.PriceMax = parseFloat(m[1])
		}
		if m := priceAboveRe.FindStringSubmatch(remaining); m != nil {
			remaining = priceAboveRe.ReplaceAllString(remaining, " ")
			plan.PriceMin = parseFloat(m[1])
		}
	}

	for _, brand := range p.Brands {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(brand) + `\b`)
		if err != nil {
			continue
		}
		if re.MatchString(remaining) {
			remaining = re.ReplaceAllString(remaining, " ")
			plan.Brands = append(plan.Brands, brand)
		}
	}

	lowered := strings.ToLower(remaining)
	for _, word := range storeTargetWords {
		if containsWord(lowered, word) {
			plan.Target = models.TargetStores
			break
		}
	}
	for _, word := range strings.Fields(lowered) {
		word = strings.Trim(word, ".,!?")
		mt, ok := verticalKeywords[word]
		if !ok {
			// Naive plural: "restaurants" matches "restaurant".
			mt, ok = verticalKeywords[strings.TrimSuffix(word, "s")]
		}
		if ok {
			plan.Module = models.ModuleSelector{Type: string(mt)}
			break
		}
	}

	plan.Query = normalizePhrase(remaining)
	return plan
}

func normalizePhrase(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(strings.ToLower(s), " "))
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if strings.Trim(w, ".,!?") == word {
			return true
		}
	}
	return false
}

func parseFloat(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
