package polymarket

// mapping.go — conversión de DTOs raw a domain entities. Aquí vive todo el
// parsing frágil: regexes sobre la pregunta, token IDs codificados como
// string JSON y la hora de apertura en ET.

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
)

const (
	// Un mercado es elegible si expira entre 1 y 20 minutos desde ahora.
	minSecondsToEnd = 60
	maxSecondsToEnd = 1200
)

// assetPatterns mapea regexes sobre la pregunta a símbolos canónicos.
// El orden importa: se evalúan en este orden y gana el primero.
var assetPatterns = []struct {
	asset   string
	pattern *regexp.Regexp
}{
	{"BTC", regexp.MustCompile(`(?i)\b(BTC|Bitcoin)\b`)},
	{"ETH", regexp.MustCompile(`(?i)\b(ETH|Ethereum)\b`)},
	{"SOL", regexp.MustCompile(`(?i)\b(SOL|Solana)\b`)},
	{"XRP", regexp.MustCompile(`(?i)\bXRP\b`)},
}

// windowPattern detecta mercados de ventana de 15 minutos
// (p.ej. "11:15AM-11:30AM"). Grupo 1 = hora de apertura, grupo 2 = cierre.
var windowPattern = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}\s*[AP]M)\s*-\s*(\d{1,2}:\d{2}\s*[AP]M)`)

// marketTZ es la zona de las horas en la pregunta.
var marketTZ = mustLoadET()

func mustLoadET() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic("load America/New_York: " + err.Error())
	}
	return loc
}

// mapGammaMarket convierte un gammaMarket en domain.Market. Devuelve false
// si el mercado no es un cripto de ventana de 15 min próximo a expirar.
func mapGammaMarket(gm gammaMarket, now time.Time) (domain.Market, bool) {
	asset := extractAsset(gm.Question)
	if asset == "" {
		return domain.Market{}, false
	}
	if !windowPattern.MatchString(gm.Question) {
		return domain.Market{}, false
	}
	if !gm.Active || gm.Closed {
		return domain.Market{}, false
	}

	yesToken, noToken, ok := parseTokenIDs(gm.ClobTokenIDs)
	if !ok {
		return domain.Market{}, false
	}

	endDate, ok := parseEndDate(gm)
	if !ok {
		return domain.Market{}, false
	}
	secondsToEnd := endDate.Sub(now).Seconds()
	if secondsToEnd < minSecondsToEnd || secondsToEnd > maxSecondsToEnd {
		return domain.Market{}, false
	}

	conditionID := gm.ConditionID
	if conditionID == "" {
		conditionID = gm.ID
	}
	if conditionID == "" {
		return domain.Market{}, false
	}

	m := domain.Market{
		ConditionID: conditionID,
		Question:    gm.Question,
		YesTokenID:  yesToken,
		NoTokenID:   noToken,
		EndDate:     endDate,
		Asset:       asset,
	}
	if open, ok := parseWindowOpen(gm.Question, endDate); ok {
		m.WindowOpen = &open
	}
	return m, true
}

// extractAsset devuelve el símbolo canónico del activo de la pregunta,
// o "" si no matchea ninguno.
func extractAsset(question string) string {
	for _, ap := range assetPatterns {
		if ap.pattern.MatchString(question) {
			return ap.asset
		}
	}
	return ""
}

// parseTokenIDs decodifica clobTokenIds, un array JSON codificado como
// string: `"[\"123\", \"456\"]"`. El primer token es YES, el segundo NO.
func parseTokenIDs(raw string) (yes, no string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	var tokens []string
	if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
		return "", "", false
	}
	if len(tokens) != 2 || tokens[0] == "" || tokens[1] == "" {
		return "", "", false
	}
	return tokens[0], tokens[1], true
}

// parseEndDate prueba endDate y endDateIso, ambos en RFC 3339.
func parseEndDate(gm gammaMarket) (time.Time, bool) {
	for _, raw := range []string{gm.EndDate, gm.EndDateISO} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseWindowOpen extrae la hora de apertura de la pregunta (grupo 1 del
// windowPattern, p.ej. "2:00PM"), la combina con la fecha del endDate en ET
// y la convierte a UTC.
func parseWindowOpen(question string, endDate time.Time) (time.Time, bool) {
	match := windowPattern.FindStringSubmatch(question)
	if match == nil {
		return time.Time{}, false
	}

	raw := strings.ToUpper(strings.ReplaceAll(match[1], " ", ""))
	t, err := time.Parse("3:04PM", raw)
	if err != nil {
		return time.Time{}, false
	}

	endET := endDate.In(marketTZ)
	open := time.Date(endET.Year(), endET.Month(), endET.Day(),
		t.Hour(), t.Minute(), 0, 0, marketTZ)
	return open.UTC(), true
}

// bestAsk devuelve el ask positivo más bajo del book, o false si no hay.
func bestAsk(book bookResponse) (float64, bool) {
	best := 0.0
	found := false
	for _, a := range book.Asks {
		p, err := strconv.ParseFloat(a.Price, 64)
		if err != nil || p <= 0 {
			continue
		}
		if !found || p < best {
			best = p
			found = true
		}
	}
	return best, found
}
