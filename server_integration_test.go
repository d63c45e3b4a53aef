package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"datacleanse/pkg/cleaning"
	"datacleanse/pkg/lifecycle"
	"datacleanse/pkg/objstore"
	"datacleanse/pkg/queue"
	"datacleanse/pkg/review"
	"datacleanse/process/worker"

	"github.com/gin-gonic/gin"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	// allow callers to pass nil for body safely
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) (*gin.Engine, *queue.Memory) {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	tmp := t.TempDir()
	_ = os.Setenv("UPLOAD_BASE", tmp)
	jwtSecret = []byte("test-secret")
	initDB()

	var err error
	store, err = objstore.NewDisk(tmp)
	if err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	jobs := queue.NewMemory()
	coordinator = review.NewCoordinator(db)
	controller = lifecycle.NewController(db, jobs, coordinator)

	r := gin.Default()
	setupRoutes(r)
	return r, jobs
}

func TestFullPipelineFlow(t *testing.T) {
	r, jobs := setupTestServer(t)
	username := fmt.Sprintf("user-%d", time.Now().UnixNano())

	// 1. Register and login
	regBody, _ := json.Marshal(map[string]string{"username": username, "password": "pass123"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	if token == "" {
		t.Fatalf("empty token in login response: %+v", loginResp)
	}

	// 2. Upload a two-row CSV
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, _ := mw.CreateFormFile("file", "people.csv")
	_, _ = fw.Write([]byte("name\nbob\nALICE\n"))
	_ = mw.Close()
	resp = performRequest(r, http.MethodPost, "/datasets", buf, token, mw.FormDataContentType())
	if resp.Code != 200 {
		t.Fatalf("upload failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var created map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &created)
	datasetID, _ := created["datasetId"].(string)
	if datasetID == "" {
		t.Fatalf("missing datasetId in upload response: %+v", created)
	}
	if created["status"] != "uploaded" {
		t.Fatalf("expected status uploaded got %v", created["status"])
	}

	// 3. Request processing, then run the worker over the queued job
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/process", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("process request failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	// duplicate request must conflict
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/process", nil, token, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate process request got %d", resp.Code)
	}

	w := worker.New(db, store, cleaning.NewRules())
	if err := jobs.Drain(context.Background(), w.Handle); err != nil {
		t.Fatalf("worker drain failed: %v", err)
	}

	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID, nil, token, "")
	var dsResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &dsResp)
	if dsResp["status"] != "processed" {
		t.Fatalf("expected status processed got %v", dsResp["status"])
	}

	// 4. Records carry the suggested changes
	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID+"/records", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list records failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var recResp struct {
		Records []struct {
			Index   int            `json:"index"`
			Data    map[string]any `json:"data"`
			Changes map[string]any `json:"changes"`
		} `json:"records"`
	}
	_ = json.Unmarshal(resp.Body.Bytes(), &recResp)
	if len(recResp.Records) != 2 {
		t.Fatalf("expected 2 records got %d", len(recResp.Records))
	}
	if recResp.Records[0].Changes["name"] != "Bob" || recResp.Records[1].Changes["name"] != "Alice" {
		t.Fatalf("unexpected suggested changes: %+v", recResp.Records)
	}

	// 5. Review both rows, checking progress along the way
	reviewBody, _ := json.Marshal(map[string]any{"approved": true})
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/records/0/review", bytes.NewBuffer(reviewBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("review 0 failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID+"/progress", nil, token, "")
	var prog map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &prog)
	if prog["progress"] != float64(50) {
		t.Fatalf("expected 50%% progress got %v", prog["progress"])
	}

	// completion is still gated
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/complete", nil, token, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for premature completion got %d", resp.Code)
	}

	reviewBody, _ = json.Marshal(map[string]any{"approved": false, "comments": "bad casing"})
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/records/1/review", bytes.NewBuffer(reviewBody), token, "application/json")
	if resp.Code != 200 {
		t.Fatalf("review 1 failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID+"/progress", nil, token, "")
	_ = json.Unmarshal(resp.Body.Bytes(), &prog)
	if prog["progress"] != float64(100) {
		t.Fatalf("expected 100%% progress got %v", prog["progress"])
	}
	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID, nil, token, "")
	_ = json.Unmarshal(resp.Body.Bytes(), &dsResp)
	if dsResp["status"] != "reviewing" {
		t.Fatalf("expected status reviewing got %v", dsResp["status"])
	}

	// 6. Complete, then verify the terminal state and download
	resp = performRequest(r, http.MethodPost, "/datasets/"+datasetID+"/complete", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("complete failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID, nil, token, "")
	_ = json.Unmarshal(resp.Body.Bytes(), &dsResp)
	if dsResp["status"] != "completed" {
		t.Fatalf("expected status completed got %v", dsResp["status"])
	}

	resp = performRequest(r, http.MethodGet, "/datasets/"+datasetID+"/download", nil, token, "")
	if resp.Code != 200 || !bytes.Contains(resp.Body.Bytes(), []byte("ALICE")) {
		t.Fatalf("download failed status=%d body=%q", resp.Code, resp.Body.String())
	}

	// 7. Deletion after processing must conflict
	resp = performRequest(r, http.MethodDelete, "/datasets/"+datasetID, nil, token, "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 deleting completed dataset got %d", resp.Code)
	}

	// 8. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/datasets", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list got %d", unauth.Code)
	}
}
