package domain

import "time"

// PriceSample es un punto (timestamp, precio) del feed spot de un activo.
type PriceSample struct {
	Time  time.Time
	Price float64
}
