// Package types defines the domain entities and shared value types for the
// storefront service: products, users, application errors, and context
// propagation helpers. It has no dependencies on other internal packages so
// every layer can import it freely.
package types

import "time"

// Product is a catalog item offered for sale. Each product is a one-off:
// settlement flips Sold to true exactly once, after which the product can
// never be sold again through this pipeline.
type Product struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"`
	Sold        bool      `json:"sold"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is a registered account that can create checkout sessions and manage
// the product catalog. PasswordHash is never serialized.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CheckoutSession is the opaque redirect handle returned by the payment
// provider when a checkout session is created.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
