package model

type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type DepositRequest struct {
	Sum float64 `json:"sum"`
}

type WithdrawRequest struct {
	Sum float64 `json:"sum"`
}

type QuoteRequest struct {
	PickupParams
	Participants int `json:"participants"`
}

type CreateOrderRequest struct {
	PickupParams
	GroupID        int64 `json:"group_id"`
	ParticipantIDs []int `json:"participant_ids"`
}

type SubmitFeeRequest struct {
	Fee      float64 `json:"fee"`
	ProofRef string  `json:"proof_ref"`
}
