package domain

// Offer is a wholesale catalog entry a retail product is sourced from.
type Offer struct {
	ID        string
	ProductID string
	Factor    Factor
}

// Transformation maps a wholesale product back to the retail product sold
// at the hub.
type Transformation struct {
	WholesaleProductID string
	RetailProductID    string
	Factor             Factor
}

// Identity is used when the wholesale product is not transformed and is
// sold one to one.
func Identity(wholesaleProductID string) Transformation {
	return Transformation{
		WholesaleProductID: wholesaleProductID,
		RetailProductID:    wholesaleProductID,
		Factor:             Unit,
	}
}
