package relayproxy

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/interstate-labs/preconf-gateway/ethtypes"
)

// handleStatus fans out GET /eth/v1/builder/status and reports healthy if
// any relay responds OK.
func (p *Proxy) handleStatus(w http.ResponseWriter, r *http.Request) {
	results := make(chan bool, len(p.relays))
	for _, relay := range p.relays {
		relay := relay
		go func() { results <- relay.Status(r.Context()) }()
	}

	anyUp := len(p.relays) == 0
	for range p.relays {
		if <-results {
			anyUp = true
		}
	}

	if anyUp {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
}

func (p *Proxy) handleRegisterValidators(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}
	var registrations []json.RawMessage
	if err := json.Unmarshal(body, &registrations); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode registrations"})
		return
	}

	var wg sync.WaitGroup
	for _, relay := range p.relays {
		relay := relay
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.RegisterValidators(r.Context(), registrations); err != nil {
				p.log.Warn("validator registration forward failed", "relay", relay.Pubkey, "error", err)
			}
		}()
	}
	wg.Wait()

	w.WriteHeader(http.StatusOK)
}

func (p *Proxy) handleSubmitConstraints(w http.ResponseWriter, r *http.Request) {
	var signed ethtypes.SignedConstraints
	if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode constraints"})
		return
	}
	if err := p.constraints.AddConstraints(signed.Message.Slot, signed); err != nil {
		writeGatewayErr(w, err)
		return
	}

	var wg sync.WaitGroup
	for _, relay := range p.relays {
		relay := relay
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.SubmitConstraints(r.Context(), []ethtypes.SignedConstraints{signed}); err != nil {
				p.log.Warn("constraints forward failed", "relay", relay.Pubkey, "error", err)
			}
		}()
	}
	wg.Wait()

	w.WriteHeader(http.StatusOK)
}

func (p *Proxy) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var signed ethtypes.SignedDelegation
	if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode delegation"})
		return
	}
	if p.delegations != nil {
		p.delegations.Delegate(signed.Message.ValidatorPubkey, signed.Message.DelegateePubkey)
	}
	var wg sync.WaitGroup
	for _, relay := range p.relays {
		relay := relay
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.SubmitDelegation(r.Context(), signed); err != nil {
				p.log.Warn("delegation forward failed", "relay", relay.Pubkey, "error", err)
			}
		}()
	}
	wg.Wait()
	w.WriteHeader(http.StatusOK)
}

func (p *Proxy) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var signed ethtypes.SignedRevocation
	if err := json.NewDecoder(r.Body).Decode(&signed); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode revocation"})
		return
	}
	if p.delegations != nil {
		p.delegations.Revoke(signed.Message.ValidatorPubkey, signed.Message.DelegateePubkey)
	}
	var wg sync.WaitGroup
	for _, relay := range p.relays {
		relay := relay
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.SubmitRevocation(r.Context(), signed); err != nil {
				p.log.Warn("revocation forward failed", "relay", relay.Pubkey, "error", err)
			}
		}()
	}
	wg.Wait()
	w.WriteHeader(http.StatusOK)
}
