package wallet

import "encoding/json"

// stubPsbtBody is StubWallet's internal PSBT encoding. It is not a real
// PSBT per BIP174 — it exists only so StubWallet can exercise the engine's
// build -> sign -> combine -> finalize lifecycle without a real descriptor
// library wired in.
type stubPsbtBody struct {
	Descriptor string   `json:"descriptor"`
	Kind       string   `json:"kind"`
	Address    string   `json:"address,omitempty"`
	Message    string   `json:"message,omitempty"`
	Amount     uint64   `json:"amount"`
	Fee        uint64   `json:"fee,omitempty"`
	Signers    []string `json:"signers,omitempty"`
}

func encodeStubPsbt(body stubPsbtBody) Psbt {
	b, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return Psbt(b)
}

func decodeStubPsbt(p Psbt) (stubPsbtBody, error) {
	var body stubPsbtBody
	err := json.Unmarshal(p, &body)
	return body, err
}
