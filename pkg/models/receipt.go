// pkg/models/receipt.go
package models

// Receipt identifies one subscription to a potential network result. Its
// ReceiptID is the identity of the subscription, not of the underlying
// network attempt — several receipts can share one in-flight Request.
type Receipt struct {
	Request   *Request
	ReceiptID string
}
