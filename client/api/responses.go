package api

import (
	"net/http"

	"github.com/absmach/fledge/client"
	"github.com/absmach/fledge/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*stopResponse)(nil)
)

type statusResponse struct {
	client.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.Round
}

func (r roundResponse) Code() int {
	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	fl.RoundPage
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type stopResponse struct{}

func (s stopResponse) Code() int {
	return http.StatusAccepted
}

func (s stopResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s stopResponse) Empty() bool {
	return true
}
