package api

// maxRounds keeps a single HTTP request from pinning the coordinator forever.
const maxRounds = 10_000

type trainReq struct {
	Rounds uint64 `json:"rounds"`
}

func (req trainReq) validate() error {
	if req.Rounds > maxRounds {
		return ErrInvalidRounds
	}

	return nil
}
