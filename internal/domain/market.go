package domain

import "time"

// Side es uno de los dos lados de un mercado binario.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market representa un mercado binario de ventana corta sobre un cripto-activo
// (p.ej. "Bitcoin Up or Down - 2:00PM-2:15PM ET").
type Market struct {
	ConditionID string
	Question    string
	YesTokenID  string
	NoTokenID   string
	EndDate     time.Time  // momento de resolución
	WindowOpen  *time.Time // apertura de la ventana; nil hasta conocerse
	Asset       string     // BTC, ETH, SOL, XRP

	// Strike es el precio spot capturado en el instante de apertura de la
	// ventana. nil hasta la captura; inmutable después.
	Strike *float64
}

// SecondsRemaining devuelve los segundos hasta la resolución (mínimo 0).
func (m Market) SecondsRemaining(now time.Time) float64 {
	s := m.EndDate.Sub(now).Seconds()
	if s < 0 {
		return 0
	}
	return s
}

// Expired devuelve true si el mercado ya pasó su momento de resolución.
func (m Market) Expired(now time.Time) bool {
	return now.After(m.EndDate)
}

// WindowOpened devuelve true si la ventana ya abrió.
func (m Market) WindowOpened(now time.Time) bool {
	return m.WindowOpen != nil && !now.Before(*m.WindowOpen)
}

// SetStrike fija el strike una única vez. Devuelve false si ya estaba fijado.
func (m *Market) SetStrike(price float64) bool {
	if m.Strike != nil {
		return false
	}
	p := price
	m.Strike = &p
	return true
}

// TokenSide devuelve el lado al que pertenece el token dado.
func (m Market) TokenSide(tokenID string) (Side, bool) {
	switch tokenID {
	case m.YesTokenID:
		return SideYes, true
	case m.NoTokenID:
		return SideNo, true
	}
	return "", false
}

// TruncateQuestion devuelve la pregunta truncada a maxLen caracteres.
// Si está vacía usa los primeros caracteres del conditionID como fallback.
func TruncateQuestion(question, conditionID string, maxLen int) string {
	q := question
	if q == "" {
		if len(conditionID) > 20 {
			q = conditionID[:20] + "..."
		} else {
			q = conditionID
		}
	}
	if len(q) > maxLen {
		q = q[:maxLen-3] + "..."
	}
	return q
}
