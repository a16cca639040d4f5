package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type sheetsAPI struct {
	mu          sync.Mutex
	title       string
	values      [][]interface{}
	inputOption string
	requests    []map[string]json.RawMessage
	shared      []string
}

func (a *sheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	path := r.URL.Path

	switch {
	case r.Method == http.MethodPost && path == "/v4/spreadsheets":
		var body struct {
			Properties struct {
				Title string `json:"title"`
			} `json:"properties"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.title = body.Properties.Title
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1","spreadsheetUrl":"https://docs.example/sheet-1",
			"sheets":[{"properties":{"sheetId":7,"title":"Campaign Performance"}}]}`))
	case r.Method == http.MethodPut && strings.Contains(path, "/values/"):
		var body struct {
			Values [][]interface{} `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.values = body.Values
		a.inputOption = r.URL.Query().Get("valueInputOption")
		_, _ = w.Write([]byte(`{"updatedCells":42}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		var body struct {
			Requests []map[string]json.RawMessage `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.requests = body.Requests
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/permissions"):
		var body struct {
			EmailAddress string `json:"emailAddress"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		a.shared = append(a.shared, body.EmailAddress)
		_, _ = w.Write([]byte(`{"id":"perm-1"}`))
	default:
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	}
}

func TestSheetsExport(t *testing.T) {
	api := &sheetsAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ctx := context.Background()
	exp, err := NewSheetsExporterWithOptions(ctx,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)

	res, err := exp.Export(ctx, "Weekly", sampleRows(), []string{"ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "sheet-1", res.SpreadsheetID)
	assert.Equal(t, "https://docs.example/sheet-1", res.URL)
	assert.Equal(t, int64(42), res.UpdatedCells)

	api.mu.Lock()
	defer api.mu.Unlock()
	assert.Equal(t, "Weekly", api.title)
	assert.Equal(t, "USER_ENTERED", api.inputOption)
	require.Len(t, api.values, 20)
	assert.Equal(t, "Campaign Name", api.values[0][0])
	assert.Equal(t, "NETWORK: Pornhub", api.values[1][0])

	require.Len(t, api.requests, 2+len(Columns))
	assert.Contains(t, api.requests[0], "repeatCell")
	var frozen struct {
		Properties struct {
			SheetID        int64 `json:"sheetId"`
			GridProperties struct {
				FrozenRowCount int64 `json:"frozenRowCount"`
			} `json:"gridProperties"`
		} `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(api.requests[1]["updateSheetProperties"], &frozen))
	assert.Equal(t, int64(7), frozen.Properties.SheetID)
	assert.Equal(t, int64(1), frozen.Properties.GridProperties.FrozenRowCount)

	assert.Equal(t, []string{"ops@example.com"}, api.shared)
}

func TestSheetsExportCreateFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	ctx := context.Background()
	exp, err := NewSheetsExporterWithOptions(ctx,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication())
	require.NoError(t, err)

	_, err = exp.Export(ctx, "Weekly", sampleRows(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create spreadsheet")
}
