package domain

import "time"

// InventoryRow хранит счётчики остатков для одного товара.
// Инвариант: available >= 0 и reserved >= 0 в любой зафиксированной записи;
// каждый предикат мутации обязан его охранять.
type InventoryRow struct {
	ProductID       string
	Available       int64
	Reserved        int64
	LastRestockedAt time.Time
	UpdatedAt       time.Time
}

// AuditAction перечисляет действия, фиксируемые в журнале аудита склада.
type AuditAction string

const (
	AuditActionReserve AuditAction = "RESERVE"
	AuditActionRelease AuditAction = "RELEASE"
	AuditActionRestock AuditAction = "RESTOCK"
	AuditActionAdjust  AuditAction = "ADJUST"
	AuditActionCreate  AuditAction = "CREATE"
	AuditActionDelete  AuditAction = "DELETE"
)

// AuditEntry — запись append-only журнала мутаций склада.
// Пишется в той же транзакции, что и сама мутация.
type AuditEntry struct {
	ID            string
	ProductID     string
	Action        AuditAction
	PreviousValue int64
	NewValue      int64
	Delta         int64
	Reason        string
	OrderID       string
	CorrelationID string
	CreatedAt     time.Time
}

// ReserveLine описывает одну позицию батчевого резервирования.
type ReserveLine struct {
	ProductID string
	Quantity  int64
}
