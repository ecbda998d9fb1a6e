package x402

// FindMatchingRequirement selects the payment requirement whose network and
// scheme match the decoded proof. Exactly one requirement is selected per
// request; no match means the client paid on a chain this route does not
// accept.
func FindMatchingRequirement(payment PaymentPayload, requirements []PaymentRequirement) (*PaymentRequirement, error) {
	for i := range requirements {
		if requirements[i].Network == payment.Network && requirements[i].Scheme == payment.Scheme {
			return &requirements[i], nil
		}
	}
	return nil, ErrNoMatchingRequirement
}
