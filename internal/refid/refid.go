// Package refid generates the identifiers used on invoices and line items.
package refid

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// NewInvoiceRef returns a human-readable invoice reference of the form
// AG-YYMMDD-RRRR, where YYMMDD is the current local date and RRRR a
// zero-padded random integer in [0, 9999]. Collisions are cosmetically
// possible and accepted for a single-device, human-reviewed workflow.
func NewInvoiceRef() string {
	return newInvoiceRefAt(time.Now(), rand.IntN(10000))
}

func newInvoiceRefAt(at time.Time, suffix int) string {
	return fmt.Sprintf("AG-%s-%04d", at.Format("060102"), suffix)
}

// NewItemID returns a locally-unique identifier for line items and catalog
// entries. It has no cross-session meaning.
func NewItemID() string {
	return uuid.NewString()
}
