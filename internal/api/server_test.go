package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"transfer-rates/internal/store"
	contracts "transfer-rates/pkg/api"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	ts := httptest.NewServer(NewServer(st).Routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// seedRoutes builds brownsville/tamaulipas/Matamoros@250 through the API.
func seedRoutes(t *testing.T, base string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, base+"/api/v1/destinations",
		contracts.CreateDestinationRequest{Name: "Brownsville"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/api/v1/destinations/brownsville/states",
		contracts.CreateStateRequest{Name: "Tamaulipas"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, base+"/api/v1/destinations/brownsville/states/tamaulipas/cities",
		contracts.CreateCityRequest{Name: "Matamoros", Price: "250"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
}

func TestGetRates(t *testing.T) {
	ts, _ := newTestServer(t)
	seedRoutes(t, ts.URL)

	resp, err := http.Get(ts.URL + "/api/v1/rates")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	rates := decode[contracts.RatesResponse](t, resp)
	assert.EqualValues(t, 3, rates.Version)
	dest := rates.Destinations["brownsville"]
	require.NotNil(t, dest)
	st := dest.States["tamaulipas"]
	require.NotNil(t, st)
	require.Len(t, st.Cities, 1)
	assert.Equal(t, "Matamoros", st.Cities[0].Name)
}

func TestMutationErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t)
	seedRoutes(t, ts.URL)
	base := ts.URL + "/api/v1"

	// duplicate destination → 409 conflict
	resp := doJSON(t, http.MethodPost, base+"/destinations",
		contracts.CreateDestinationRequest{Name: "BROWNSVILLE"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errResp := decode[contracts.ErrorResponse](t, resp)
	assert.Equal(t, "conflict", errResp.Error)

	// unknown destination → 404
	resp = doJSON(t, http.MethodPost, base+"/destinations/laredo/states",
		contracts.CreateStateRequest{Name: "Coahuila"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errResp = decode[contracts.ErrorResponse](t, resp)
	assert.Equal(t, "not_found", errResp.Error)

	// non-positive price → 422
	resp = doJSON(t, http.MethodPost, base+"/destinations/brownsville/states/tamaulipas/cities",
		contracts.CreateCityRequest{Name: "Reynosa", Price: "0"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// unparseable price → 422
	resp = doJSON(t, http.MethodPost, base+"/destinations/brownsville/states/tamaulipas/cities",
		contracts.CreateCityRequest{Name: "Reynosa", Price: "cheap"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// malformed body → 422
	req, _ := http.NewRequest(http.MethodPost, base+"/destinations", strings.NewReader("{"))
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, raw.StatusCode)
	raw.Body.Close()
}

func TestRenameAndDeleteFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	seedRoutes(t, ts.URL)
	base := ts.URL + "/api/v1"

	resp := doJSON(t, http.MethodPut, base+"/destinations/brownsville/",
		contracts.RenameRequest{NewName: "Puerto Isabel"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mut := decode[contracts.MutationResponse](t, resp)
	assert.True(t, mut.Success)

	newName := "H. Matamoros"
	price := "275"
	resp = doJSON(t, http.MethodPut,
		base+"/destinations/puerto-isabel/states/tamaulipas/cities/Matamoros",
		contracts.UpdateCityRequest{NewName: &newName, Price: &price})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete,
		base+"/destinations/puerto-isabel/states/tamaulipas/cities/H. Matamoros", nil)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, raw.StatusCode)
	raw.Body.Close()

	resp, err = http.Get(base + "/rates")
	require.NoError(t, err)
	rates := decode[contracts.RatesResponse](t, resp)
	assert.Nil(t, rates.Destinations["brownsville"])
	moved := rates.Destinations["puerto-isabel"]
	require.NotNil(t, moved)
	assert.Empty(t, moved.States["tamaulipas"].Cities)
}

func TestUpdateCityRequiresAField(t *testing.T) {
	ts, _ := newTestServer(t)
	seedRoutes(t, ts.URL)

	resp := doJSON(t, http.MethodPut,
		ts.URL+"/api/v1/destinations/brownsville/states/tamaulipas/cities/Matamoros",
		contracts.UpdateCityRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)
	seedRoutes(t, ts.URL)

	resp, err := http.Get(ts.URL + "/api/v1/rates/history?limit=2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	items := decode[[]contracts.HistoryItem](t, resp)
	require.Len(t, items, 2)
	assert.Equal(t, "add-city", items[0].ArchivedBy)
	assert.Equal(t, "add-state", items[1].ArchivedBy)
	assert.NotEmpty(t, items[0].ID)
}

// uploadWorkbook posts an in-memory xlsx as the multipart "file" field.
func uploadWorkbook(t *testing.T, url string, rows [][]any) *http.Response {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Brownsville"))
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Brownsville", cell, val))
		}
	}
	wb, err := f.WriteToBuffer()
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "rates.xlsx")
	require.NoError(t, err)
	_, err = part.Write(wb.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestPreviewDoesNotCommit(t *testing.T) {
	ts, st := newTestServer(t)

	resp := uploadWorkbook(t, ts.URL+"/api/v1/rates/preview", [][]any{
		{"Estado", "Ciudad", "Monto"},
		{"Tamaulipas", "Matamoros", "$250"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decode[contracts.UploadResponse](t, resp)
	assert.False(t, upload.Committed)
	assert.Equal(t, 1, upload.Summary.Cities)
	assert.Len(t, upload.Delta.Added, 1)

	history, err := st.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, history, "preview leaves the store untouched")
}

func TestImportCommits(t *testing.T) {
	ts, st := newTestServer(t)
	seedRoutes(t, ts.URL)

	resp := uploadWorkbook(t, ts.URL+"/api/v1/rates/import", [][]any{
		{"Estado", "Ciudad", "Monto"},
		{"Tamaulipas", "Matamoros", "300"},
		{"Tamaulipas", "Reynosa", "780"},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	upload := decode[contracts.UploadResponse](t, resp)
	assert.True(t, upload.Committed)
	assert.EqualValues(t, 4, upload.Version)
	assert.Len(t, upload.Delta.Changed, 1, "Matamoros 250 -> 300")
	assert.Len(t, upload.Delta.Added, 1, "Reynosa is new")

	cur, err := st.Current(context.Background())
	require.NoError(t, err)
	require.Len(t, cur.Destinations["brownsville"].States["tamaulipas"].Cities, 2)
}

func TestImportRejectsGarbageUpload(t *testing.T) {
	ts, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "rates.xlsx")
	require.NoError(t, err)
	_, err = part.Write([]byte("not a workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/rates/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestImportRequiresFileField(t *testing.T) {
	ts, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/rates/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
