package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus_MapsBackendCasing(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"PENDING":    StatusPending,
		"PROCESSING": StatusProcessing,
		"COMPLETED":  StatusCompleted,
		"FAILED":     StatusFailed,
		"NOT_FOUND":  StatusNotFound,
		"completed":  StatusCompleted,
		" Failed ":   StatusFailed,
	}
	for raw, want := range cases {
		got, err := ParseStatus(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
}

func TestParseStatus_RejectsUnknown(t *testing.T) {
	t.Parallel()

	_, err := ParseStatus("EXPLODED")
	require.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	require.False(t, StatusPending.Terminal())
	require.False(t, StatusProcessing.Terminal())
	require.True(t, StatusCompleted.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusNotFound.Terminal())
}

func TestDecodeStatusPayload_Completed(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"job_id": "job-123",
		"status": "COMPLETED",
		"result": {"job_id": "job-123", "url": "https://example.com", "overall_score": 85},
		"error_message": null
	}`)
	snap, err := DecodeStatusPayload(body)
	require.NoError(t, err)
	require.Equal(t, "job-123", snap.JobID)
	require.Equal(t, StatusCompleted, snap.Status)
	require.NotNil(t, snap.Result)
	require.Equal(t, float64(85), snap.Result.OverallScore)
	require.Empty(t, snap.ErrorMessage)
}

func TestDecodeStatusPayload_CompletedWithoutResultIsRejected(t *testing.T) {
	t.Parallel()

	_, err := DecodeStatusPayload([]byte(`{"job_id":"j","status":"COMPLETED"}`))
	require.Error(t, err)
}

func TestDecodeStatusPayload_ResultAndErrorTogetherIsRejected(t *testing.T) {
	t.Parallel()

	body := []byte(`{"job_id":"j","status":"FAILED","result":{"url":"https://e.com"},"error_message":"boom"}`)
	_, err := DecodeStatusPayload(body)
	require.Error(t, err)
}

func TestDecodeStatusPayload_Failed(t *testing.T) {
	t.Parallel()

	snap, err := DecodeStatusPayload([]byte(`{"job_id":"j","status":"FAILED","error_message":"render crashed"}`))
	require.NoError(t, err)
	require.Equal(t, StatusFailed, snap.Status)
	require.Equal(t, "render crashed", snap.ErrorMessage)
	require.Nil(t, snap.Result)
}

func TestDecodeStatusPayload_NotFound(t *testing.T) {
	t.Parallel()

	snap, err := DecodeStatusPayload([]byte(`{"job_id":"missing","status":"NOT_FOUND","result":null}`))
	require.NoError(t, err)
	require.Equal(t, StatusNotFound, snap.Status)
	require.True(t, snap.Status.Terminal())
}

func TestValidateTargetURL(t *testing.T) {
	t.Parallel()

	valid := []string{
		"https://example.com",
		"http://example.com/path?q=1",
		"https://sub.domain.example.com:8443/",
	}
	for _, raw := range valid {
		require.NoError(t, ValidateTargetURL(raw), raw)
	}

	invalid := []string{
		"",
		"not a url",
		"example.com",
		"ftp://example.com",
		"https://",
		"/relative/path",
	}
	for _, raw := range invalid {
		err := ValidateTargetURL(raw)
		require.ErrorIs(t, err, ErrInvalidInput, raw)
	}
}
