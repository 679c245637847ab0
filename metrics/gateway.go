package metrics

// ApiMetrics groups the gateway's observable counters. Named only by
// interface at the call sites (metrics registration/collection itself is
// out of scope), the counters are real: every field here is incremented by
// a concrete event in the commitment pipeline.
type ApiMetrics struct {
	registry *Registry

	// ReceivedCommitments counts accepted preconfirmation requests.
	ReceivedCommitments *Counter
	// PreconfirmedTxByType counts preconfirmed transactions, one counter
	// per EIP-2718 transaction type (0 legacy, 1 access-list, 2 dynamic-fee,
	// 3 blob).
	PreconfirmedTxByType map[uint8]*Counter
	// ValidationErrorsByTag counts preflight rejections, keyed by error
	// kind name (the string value of a gatewayerr.Kind).
	ValidationErrorsByTag map[string]*Counter
	// InvalidBidsByRelay counts multiproof/header validation failures,
	// keyed by relay identifier.
	InvalidBidsByRelay map[string]*Counter
}

// NewApiMetrics creates an ApiMetrics bound to registry, pre-seeding the
// fixed-cardinality counters (the per-type and per-tag maps grow lazily).
func NewApiMetrics(registry *Registry) *ApiMetrics {
	return &ApiMetrics{
		registry:              registry,
		ReceivedCommitments:   registry.Counter("gateway.received_commitments"),
		PreconfirmedTxByType:  make(map[uint8]*Counter),
		ValidationErrorsByTag: make(map[string]*Counter),
		InvalidBidsByRelay:    make(map[string]*Counter),
	}
}

// RecordPreconfirmedTx increments the per-type preconfirmed transaction
// counter, creating it on first use.
func (m *ApiMetrics) RecordPreconfirmedTx(txType uint8) {
	c, ok := m.PreconfirmedTxByType[txType]
	if !ok {
		c = m.registry.Counter(txTypeMetricName(txType))
		m.PreconfirmedTxByType[txType] = c
	}
	c.Inc()
}

// RecordValidationError increments the counter for the given error kind tag.
func (m *ApiMetrics) RecordValidationError(tag string) {
	c, ok := m.ValidationErrorsByTag[tag]
	if !ok {
		c = m.registry.Counter("gateway.validation_errors." + tag)
		m.ValidationErrorsByTag[tag] = c
	}
	c.Inc()
}

// RecordInvalidBid increments the invalid-bid counter for relay.
func (m *ApiMetrics) RecordInvalidBid(relay string) {
	c, ok := m.InvalidBidsByRelay[relay]
	if !ok {
		c = m.registry.Counter("gateway.invalid_bids." + relay)
		m.InvalidBidsByRelay[relay] = c
	}
	c.Inc()
}

func txTypeMetricName(txType uint8) string {
	switch txType {
	case 0:
		return "gateway.preconfirmed_tx.legacy"
	case 1:
		return "gateway.preconfirmed_tx.access_list"
	case 2:
		return "gateway.preconfirmed_tx.dynamic_fee"
	case 3:
		return "gateway.preconfirmed_tx.blob"
	default:
		return "gateway.preconfirmed_tx.unknown"
	}
}
