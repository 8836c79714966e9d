package versions

import (
	"time"

	"gorm.io/gorm"
)

// Tickets originally only tracked a status string. This records when a
// ticket was closed so reopening can clear the timestamp again.
func Migration_2_ticket_closed_at(txn *gorm.DB) error {
	type Ticket struct {
		ClosedAt *time.Time
	}

	if txn.Migrator().HasColumn(&Ticket{}, "closed_at") {
		return nil
	}

	return txn.Migrator().AddColumn(&Ticket{}, "ClosedAt")
}
