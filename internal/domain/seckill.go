package domain

import "time"

// SeckillOutcome — результат атомарного скрипта резервирования.
// Значения совпадают с кодами возврата скрипта.
type SeckillOutcome int

const (
	SeckillReserved           SeckillOutcome = 1
	SeckillOutOfStock         SeckillOutcome = -1
	SeckillAlreadyPurchased   SeckillOutcome = -2
	SeckillCampaignNotStarted SeckillOutcome = -3
	SeckillRateLimited        SeckillOutcome = -4
)

// String возвращает код исхода для ответов API и метрик.
func (o SeckillOutcome) String() string {
	switch o {
	case SeckillReserved:
		return "RESERVED"
	case SeckillOutOfStock:
		return "OUT_OF_STOCK"
	case SeckillAlreadyPurchased:
		return "ALREADY_PURCHASED"
	case SeckillCampaignNotStarted:
		return "CAMPAIGN_NOT_STARTED"
	case SeckillRateLimited:
		return "RATE_LIMIT_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// Campaign описывает flash-sale кампанию.
// Инварианты: stockRemaining >= 0; |winners| + stockRemaining = totalStock;
// каждый userID встречается среди winners не более одного раза.
type Campaign struct {
	ProductID      string
	TotalStock     int64
	StockRemaining int64
	PriceMinor     int64
	Currency       string
	StartTime      time.Time
	EndTime        time.Time
	WinnerCount    int64
}

// Active сообщает, открыта ли кампания в момент now.
func (c Campaign) Active(now time.Time) bool {
	if now.Before(c.StartTime) {
		return false
	}
	if !c.EndTime.IsZero() && now.After(c.EndTime) {
		return false
	}
	return true
}

// GhostOrder — успешно зарезервированный слот, событие о котором
// не удалось опубликовать. Хранится в локальном журнале для replay.
type GhostOrder struct {
	ProductID     string
	UserID        string
	CorrelationID string
	ReservedAt    time.Time
	PublishError  string
}
