package aggregator

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostDeliversReportToAggregator(t *testing.T) {
	a := New(1, nil)
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	err := Post(context.Background(), srv.URL, Report{ContainerID: "pop-1", Operation: OperationPopulate, Success: true})
	require.NoError(t, err)
	assert.Equal(t, 1, a.ReportCount())
}

func TestPostSurfacesBadStatus(t *testing.T) {
	srv := httptest.NewServer(nil)
	defer srv.Close()

	err := Post(context.Background(), srv.URL, Report{ContainerID: "pop-1"})
	assert.Error(t, err)
}
