package domain

// Wallet is a pre-provisioned receiving address. InUse is true while the
// address is bound to a pending order; at most one pending order may
// reference an address at a time.
type Wallet struct {
	Address string
	InUse   bool
}
