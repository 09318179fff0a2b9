package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/absmach/fledge/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSDK struct {
	page    sdk.RoundPage
	round   sdk.Round
	status  sdk.Status
	err     error
	offset  uint64
	limit   uint64
	stopped bool
}

func (f *fakeSDK) Status() (sdk.Status, error) { return f.status, f.err }

func (f *fakeSDK) ListRounds(offset, limit uint64) (sdk.RoundPage, error) {
	f.offset, f.limit = offset, limit

	return f.page, f.err
}

func (f *fakeSDK) GetRound(string) (sdk.Round, error) { return f.round, f.err }

func (f *fakeSDK) Stop() error {
	f.stopped = f.err == nil

	return f.err
}

func TestRoundsCmd(t *testing.T) {
	f := &fakeSDK{page: sdk.RoundPage{Total: 1, Rounds: []sdk.Round{{ID: "round-1", Kind: "fit"}}}}
	SetSDK(f)

	cmd := NewRoundsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"list", "--offset", "2", "--limit", "5"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, uint64(2), f.offset)
	assert.Equal(t, uint64(5), f.limit)
	assert.Contains(t, out.String(), "round-1")
}

func TestRoundsViewUsage(t *testing.T) {
	SetSDK(&fakeSDK{})

	cmd := NewRoundsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"view"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "usage")
}

func TestStopCmd(t *testing.T) {
	f := &fakeSDK{}
	SetSDK(f)

	cmd := NewStopCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.True(t, f.stopped)
	assert.Contains(t, out.String(), "ok")

	f.err = errors.New("unexpected response code: 409")
	var errOut bytes.Buffer
	cmd = NewStopCmd()
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "409")
}

func TestStatusCmd(t *testing.T) {
	SetSDK(&fakeSDK{status: sdk.Status{ClientID: "brave-turing", Running: true}})

	cmd := NewStatusCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "brave-turing")
}

func TestConfigValidators(t *testing.T) {
	require.ErrorIs(t, notEmpty(""), errEmptyValue)
	require.NoError(t, notEmpty("x"))
	require.ErrorIs(t, positive("0"), errEpochs)
	require.ErrorIs(t, positive("abc"), errEpochs)
	require.NoError(t, positive("3"))

	cfg := defaultConfig()
	assert.NotEmpty(t, cfg.Client.ClientID)
	assert.Equal(t, 5, cfg.Client.Epochs)
}
