package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// OrderStatus описывает состояние заказа на кухне.
type OrderStatus string

const (
	// OrderStatusPending: заказ принят кассой и ждёт приготовления.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted: заказ выдан клиенту (выставляется кухонным дисплеем).
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled: заказ отменён до выдачи.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// DefaultOrderNumberBase: номер первого заказа после старта или сброса.
const DefaultOrderNumberBase int64 = 1001

// DateLayout: формат ключа календарного дня (UTC), используемый в отчётах и файлах.
const DateLayout = "2006-01-02"

// Ключи JSON, которыми владеет сервер. Остальные поля кассы попадают в Order.Extra.
const (
	fieldOrderNumber = "orderNumber"
	fieldItems       = "items"
	fieldTotal       = "total"
	fieldTimestamp   = "timestamp"
	fieldStatus      = "status"
)

// Order: принятый кассой заказ.
//
// Позиции хранятся как есть: ядро их не разбирает, только пересылает
// дисплеям и пишет на диск. Поля кассы, о которых сервер не знает
// (customerName, paymentMethod и т.п.), лежат в Extra и сохраняются при
// сериализации.
type Order struct {
	OrderNumber int64
	Items       []json.RawMessage
	Total       float64
	Timestamp   time.Time
	Status      OrderStatus
	Extra       map[string]json.RawMessage
}

// DateKey возвращает UTC-дату заказа в формате YYYY-MM-DD.
func (o Order) DateKey() string {
	return o.Timestamp.UTC().Format(DateLayout)
}

// Clone возвращает копию заказа, не разделяющую позиции и Extra с оригиналом.
func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]json.RawMessage, len(o.Items))
		for i, item := range o.Items {
			items[i] = bytes.Clone(item)
		}
		o.Items = items
	}
	if o.Extra != nil {
		extra := make(map[string]json.RawMessage, len(o.Extra))
		for k, v := range o.Extra {
			extra[k] = bytes.Clone(v)
		}
		o.Extra = extra
	}
	return o
}

// MarshalJSON пишет поля кассы из Extra вместе с серверными полями.
// Серверные поля всегда побеждают.
func (o Order) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(o.Extra)+5)
	for k, v := range o.Extra {
		fields[k] = v
	}

	items := o.Items
	if items == nil {
		items = []json.RawMessage{}
	}
	fields[fieldOrderNumber] = o.OrderNumber
	fields[fieldItems] = items
	fields[fieldTotal] = o.Total
	fields[fieldTimestamp] = o.Timestamp
	fields[fieldStatus] = o.Status
	return json.Marshal(fields)
}

// UnmarshalJSON читает заказ из файла или события. Неизвестные поля уходят в Extra.
func (o *Order) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var decoded Order
	if err := decodeField(fields, fieldOrderNumber, &decoded.OrderNumber); err != nil {
		return err
	}
	if err := decodeField(fields, fieldItems, &decoded.Items); err != nil {
		return err
	}
	if err := decodeField(fields, fieldTotal, &decoded.Total); err != nil {
		return err
	}
	if err := decodeField(fields, fieldTimestamp, &decoded.Timestamp); err != nil {
		return err
	}
	if err := decodeField(fields, fieldStatus, &decoded.Status); err != nil {
		return err
	}
	for _, key := range []string{fieldOrderNumber, fieldItems, fieldTotal, fieldTimestamp, fieldStatus} {
		delete(fields, key)
	}
	if len(fields) > 0 {
		decoded.Extra = fields
	}

	*o = decoded
	return nil
}

func decodeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
