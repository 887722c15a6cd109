package models

// Free shipping above this subtotal, flat fee below (currency units).
const (
	FreeShippingThreshold = 1000.0
	FlatShippingFee       = 100.0
)

type CartItem struct {
	ID            string
	ProductID     string
	Name          string
	Image         string
	Size          string
	Color         string
	Price         float64
	OriginalPrice *float64
	Quantity      int
}

// Savings возвращает экономию по строке: (originalPrice − price) · quantity.
// Если originalPrice не задан, экономии нет.
func (it CartItem) Savings() float64 {
	if it.OriginalPrice == nil {
		return 0
	}
	d := *it.OriginalPrice - it.Price
	if d <= 0 {
		return 0
	}
	return d * float64(it.Quantity)
}

type CartSummary struct {
	Subtotal float64
	Savings  float64
	Shipping float64
	Total    float64
}

// Summarize всегда пересчитывает итоги из текущего списка строк,
// сводка нигде не хранится отдельно от строк.
func Summarize(items []CartItem) CartSummary {
	var s CartSummary
	for _, it := range items {
		s.Subtotal += it.Price * float64(it.Quantity)
		s.Savings += it.Savings()
	}
	if s.Subtotal <= FreeShippingThreshold {
		s.Shipping = FlatShippingFee
	}
	s.Total = s.Subtotal + s.Shipping
	return s
}
