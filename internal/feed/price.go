package feed

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
)

// price.go — estado y analítica del price feed. La parte de red (websocket,
// reconexión, suscripciones) vive en price_ws.go; Record() es la frontera
// entre ambas y el punto de inyección para los tests.

const (
	// maxHistory limita la historia por activo (~30 min a 1 muestra/s).
	// FIFO: las muestras viejas se descartan en silencio, nunca se mutan.
	maxHistory = 1800

	// priceAtTolerance es la distancia máxima a la muestra más cercana
	// antes de caer al último precio.
	priceAtTolerance = 60 * time.Second

	// Mínimos de datos para que la volatilidad sea un número y no ruido.
	minVolSamples = 10
	minVolReturns = 5

	// Poda del set de deduplicación: se mantienen ~5 min de timestamps.
	seenPruneSize = 600
	seenRetention = 5 * time.Minute
)

// PriceFeed mantiene el precio spot vivo por activo y responde las consultas
// analíticas de la estrategia. Seguro para uso concurrente: un writer (el
// websocket) y N readers (el loop del coordinator).
type PriceFeed struct {
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	latest  map[string]float64
	history map[string]*sampleRing
	seen    map[string]map[int64]struct{} // asset → timestamps ms ya vistos

	lastSummary time.Time
}

// Config configura el price feed.
type Config struct {
	WSURL  string
	Assets []string // símbolos canónicos: BTC, ETH, SOL, XRP

	// ResubscribeInterval controla cada cuánto se repiten las suscripciones;
	// el stream RTDS manda un batch por subscribe, no un flujo continuo.
	ResubscribeInterval time.Duration

	// ReconnectDelay es la espera fija entre reconexiones.
	ReconnectDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.WSURL == "" {
		c.WSURL = defaultRTDSURL
	}
	if c.ResubscribeInterval <= 0 {
		c.ResubscribeInterval = 500 * time.Millisecond
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	return c
}

// NewPriceFeed crea el feed para los activos dados.
func NewPriceFeed(cfg Config, log *slog.Logger) *PriceFeed {
	cfg = cfg.withDefaults()
	f := &PriceFeed{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		latest:  make(map[string]float64),
		history: make(map[string]*sampleRing),
		seen:    make(map[string]map[int64]struct{}),
	}
	for _, a := range cfg.Assets {
		f.history[a] = newSampleRing(maxHistory)
		f.seen[a] = make(map[int64]struct{})
	}
	return f
}

// Record registra una muestra del activo. Deduplica por timestamp con
// precisión de milisegundo: los bursts de puntos repetidos del stream se
// registran una sola vez. Precios <= 0 se descartan.
func (f *PriceFeed) Record(asset string, ts time.Time, price float64) {
	if price <= 0 {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	ring, ok := f.history[asset]
	if !ok {
		return // activo no trackeado
	}

	ms := ts.UnixMilli()
	seen := f.seen[asset]
	if _, dup := seen[ms]; dup {
		return
	}
	seen[ms] = struct{}{}

	f.latest[asset] = price
	ring.push(domain.PriceSample{Time: ts, Price: price})

	if len(seen) > seenPruneSize {
		cutoff := f.now().Add(-seenRetention).UnixMilli()
		for t := range seen {
			if t < cutoff {
				delete(seen, t)
			}
		}
	}
}

// Latest devuelve el último precio del activo.
func (f *PriceFeed) Latest(asset string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.latest[asset]
	return p, ok
}

// PriceAt devuelve la muestra más cercana a t por diferencia absoluta.
// Si la más cercana está a más de 60s — o no hay historia — cae a Latest.
func (f *PriceFeed) PriceAt(asset string, t time.Time) (float64, bool) {
	f.mu.Lock()
	samples := f.copyHistory(asset)
	latest, hasLatest := f.latest[asset]
	f.mu.Unlock()

	var (
		best     float64
		bestDiff = time.Duration(math.MaxInt64)
	)
	for _, s := range samples {
		diff := s.Time.Sub(t)
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = s.Price
		}
	}

	if bestDiff <= priceAtTolerance {
		return best, true
	}
	return latest, hasLatest
}

// Volatility devuelve la desviación estándar de los log-returns consecutivos
// dentro de la ventana. Con menos de 10 muestras o 5 returns devuelve
// (0, false): "no disponible", explícitamente distinto de un cero real.
func (f *PriceFeed) Volatility(asset string, window time.Duration) (float64, bool) {
	cutoff := f.now().Add(-window)

	f.mu.Lock()
	samples := f.copyHistory(asset)
	f.mu.Unlock()

	var points []domain.PriceSample
	for _, s := range samples {
		if !s.Time.Before(cutoff) {
			points = append(points, s)
		}
	}
	if len(points) < minVolSamples {
		return 0, false
	}

	var returns []float64
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev > 0 {
			returns = append(returns, math.Log(points[i].Price/prev))
		}
	}
	if len(returns) < minVolReturns {
		return 0, false
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance), true
}

// ExpectedMove devuelve σ · precio · √(max(0, segundos restantes)).
// No disponible si σ o el precio no lo están.
func (f *PriceFeed) ExpectedMove(asset string, secondsRemaining float64, window time.Duration) (float64, bool) {
	sigma, ok := f.Volatility(asset, window)
	if !ok {
		return 0, false
	}
	price, ok := f.Latest(asset)
	if !ok || price <= 0 {
		return 0, false
	}
	return domain.ExpectedMove(sigma, price, secondsRemaining), true
}

// HasCrossed devuelve true si entre las muestras posteriores a `since` hay
// al menos una estrictamente por encima y una por debajo del strike.
func (f *PriceFeed) HasCrossed(asset string, strike float64, since time.Time) bool {
	f.mu.Lock()
	samples := f.copyHistory(asset)
	f.mu.Unlock()

	var above, below bool
	for _, s := range samples {
		if s.Time.Before(since) {
			continue
		}
		if s.Price > strike {
			above = true
		} else if s.Price < strike {
			below = true
		}
		if above && below {
			return true
		}
	}
	return false
}

// History devuelve las muestras crudas en [from, to].
func (f *PriceFeed) History(asset string, from, to time.Time) []domain.PriceSample {
	f.mu.Lock()
	samples := f.copyHistory(asset)
	f.mu.Unlock()

	var out []domain.PriceSample
	for _, s := range samples {
		if !s.Time.Before(from) && !s.Time.After(to) {
			out = append(out, s)
		}
	}
	return out
}

// copyHistory copia la historia de un activo. Llamar con el lock tomado;
// todo el cómputo pasa fuera del lock sobre la copia.
func (f *PriceFeed) copyHistory(asset string) []domain.PriceSample {
	ring, ok := f.history[asset]
	if !ok {
		return nil
	}
	return ring.snapshot()
}

// maybeLogSummary loguea un resumen de precios cada ~30s.
func (f *PriceFeed) maybeLogSummary() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	if now.Sub(f.lastSummary) < 30*time.Second {
		return
	}
	f.lastSummary = now

	attrs := make([]any, 0, len(f.cfg.Assets)*2)
	for _, a := range f.cfg.Assets {
		if p, ok := f.latest[a]; ok {
			attrs = append(attrs, a, p)
		}
	}
	if len(attrs) > 0 {
		f.log.Info("spot prices", attrs...)
	}
}

// sampleRing es un buffer circular de capacidad fija, ordenado por tiempo de
// inserción. push sobre buffer lleno desaloja la muestra más vieja.
type sampleRing struct {
	buf  []domain.PriceSample
	head int // índice de la muestra más vieja
	size int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]domain.PriceSample, capacity)}
}

func (r *sampleRing) push(s domain.PriceSample) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = s
		r.size++
		return
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % len(r.buf)
}

// snapshot devuelve una copia en orden de inserción.
func (r *sampleRing) snapshot() []domain.PriceSample {
	out := make([]domain.PriceSample, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
