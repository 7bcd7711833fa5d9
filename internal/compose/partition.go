package compose

import (
	"fmt"

	"platebatch/internal/jobs"
	"platebatch/internal/services"
)

// Item places one record in a template object slot.
type Item struct {
	Slot   int
	Record jobs.Record
}

// Batch is one output package worth of items, in slot order.
type Batch struct {
	Index int
	Items []Item
}

// SpecimenIDs lists the specimen ids of the batch in slot order.
func (b Batch) SpecimenIDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.Record.SpecimenID
	}
	return ids
}

// Partition splits records into consecutive groups of at most maxObjects, preserving
// order. Batch indexes start at 1 and slots within each batch run 1..N.
func Partition(records []jobs.Record, maxObjects int) ([]Batch, error) {
	if maxObjects <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "compose", "partition", fmt.Sprintf("max objects must be positive, got %d", maxObjects), nil)
	}
	if len(records) == 0 {
		return nil, services.Wrap(services.ErrInvalidBatchSpec, "compose", "partition", "no records to compose", nil)
	}
	batches := make([]Batch, 0, (len(records)+maxObjects-1)/maxObjects)
	for start := 0; start < len(records); start += maxObjects {
		end := min(start+maxObjects, len(records))
		batch := Batch{Index: len(batches) + 1, Items: make([]Item, 0, end-start)}
		for i, rec := range records[start:end] {
			batch.Items = append(batch.Items, Item{Slot: i + 1, Record: rec})
		}
		batches = append(batches, batch)
	}
	return batches, nil
}
