package models

import "github.com/shopspring/decimal"

func init() {
	// Backups and API responses carry amounts as JSON numbers, like the marketplace does.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	// StatusPageSize количество записей на странице status_details
	StatusPageSize = 20

	// SyncWindowDays глубина окна дашборда, проверяемого при пакетной синхронизации
	SyncWindowDays = 45

	// AutoPaidAfterDays возраст, после которого импортированные Approved/Submitted считаются оплаченными
	AutoPaidAfterDays = 31

	// DefaultSyncConcurrency число дней, синхронизируемых параллельно
	DefaultSyncConcurrency = 4

	// DateLayout канонический формат бизнес-даты
	DateLayout = "20060102"

	// DashedDateLayout формат даты в URL и ответах маркетплейса
	DashedDateLayout = "2006-01-02"
)
