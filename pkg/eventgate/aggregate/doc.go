// Package aggregate provides the entity event buffer and the identity-based
// collections the publication pipeline uses to track entities.
//
// An entity is any type implementing Entity. Embedding Root is the usual way:
//
//	type Order struct {
//	    aggregate.Root
//	    ID     string
//	    Status string
//	}
//
//	func (o *Order) Ship() {
//	    o.Status = "shipped"
//	    o.RegisterEvent(event.New("order.shipped", "order", o.ID))
//	}
//
// Set and Snapshot key entities by identity rather than value, so two
// distinct orders with equal fields are tracked separately.
package aggregate
