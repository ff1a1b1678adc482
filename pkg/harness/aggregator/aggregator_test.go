package aggregator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReturnsOK(t *testing.T) {
	a := New(1, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func postReport(t *testing.T, url string, report Report) *http.Response {
	t.Helper()
	body, err := json.Marshal(report)
	require.NoError(t, err)
	resp, err := http.Post(url+"/metrics", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestMetricsReturns202Accepted(t *testing.T) {
	a := New(1, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp := postReport(t, srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestWaitUnblocksAfterExpectedWorkers(t *testing.T) {
	a := New(2, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	postReport(t, srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true}).Body.Close()
	postReport(t, srv.URL, Report{ContainerID: "ver-1", Operation: OperationVerify, Success: true}).Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, a.Wait(ctx, time.Second))
}

func TestWaitTimesOutWithoutEnoughReports(t *testing.T) {
	a := New(2, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	postReport(t, srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true}).Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, a.Wait(ctx, 20*time.Millisecond))
}

func TestAllSucceededFalseOnAnyFailure(t *testing.T) {
	a := New(2, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	postReport(t, srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true}).Body.Close()
	postReport(t, srv.URL, Report{ContainerID: "ver-1", Operation: OperationVerify, Success: false, Errors: []string{"row mismatch"}}).Body.Close()

	assert.False(t, a.AllSucceeded())
	assert.Equal(t, 1, a.ExitCode())
}

func TestExitCodeZeroWhenAllSucceed(t *testing.T) {
	a := New(1, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	postReport(t, srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true}).Body.Close()

	assert.Equal(t, 0, a.ExitCode())
}

func TestSummaryIncludesEveryReport(t *testing.T) {
	a := New(1, nil)
	a.reports = []Report{{ContainerID: "pop-1", Operation: OperationPopulate, Success: true, Tables: []string{"orders"}}}
	assert.Contains(t, a.Summary(), "pop-1")
}
