package api

import (
	"errors"

	"github.com/absmach/fledge/pkg/api"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var (
	errLimitSize      = errors.New("invalid limit size")
	errInvalidRequest = errors.New("invalid request type")
)

type entityReq struct {
	id string
}

func (e *entityReq) validate() error {
	if e.id == "" {
		return apiutil.ErrMissingID
	}

	return nil
}

type listRoundsReq struct {
	offset, limit uint64
}

func (r *listRoundsReq) validate() error {
	if r.limit == 0 || r.limit > api.MaxLimitSize {
		return errLimitSize
	}

	return nil
}

type stopReq struct{}
