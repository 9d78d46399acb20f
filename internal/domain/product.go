package domain

import "time"

// Product — read model каталога. Обновляется консьюмером product.* событий
// и используется при создании заказа для резолва цен.
type Product struct {
	ProductID  string
	Name       string
	PriceMinor int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TimelineEvent — запись журнала жизненного цикла заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
