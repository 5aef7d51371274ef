package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AnTengye/contractrisk/analysis"
	"github.com/AnTengye/contractrisk/config"
	"github.com/AnTengye/contractrisk/extract"
	"github.com/AnTengye/contractrisk/model"
	"github.com/AnTengye/contractrisk/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

const maxUpload = 10 * 1024 * 1024

const wellFormedReport = "```json\n" + `{
	"contract_type": "locazione",
	"parties": "Alfa S.r.l. (locatore) e Beta S.p.A. (conduttore)",
	"duration": "4 anni rinnovabili",
	"key_obligations": "Pagamento del canone mensile",
	"risk_level": "low",
	"risk_clauses": [
		{"clause": "Art. 7 penale", "risk": "Penale sproporzionata", "severity": "high", "recommendation": "Ridurre la penale"},
		{"clause": "Art. 9 recesso", "risk": "Recesso unilaterale", "severity": "HIGH", "recommendation": "Prevedere preavviso"}
	],
	"deadlines": [{"description": "Disdetta entro 6 mesi dalla scadenza", "timeframe": "6 mesi"}],
	"summary": "Contratto sbilanciato a favore del locatore"
}` + "\n```"

// scriptedCompleter answers every completion with the next scripted reply
type scriptedCompleter struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (s *scriptedCompleter) Complete(ctx context.Context, req analysis.CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := s.replies[len(s.replies)-1]
	if s.calls < len(s.replies) {
		reply = s.replies[s.calls]
	}
	s.calls++
	return reply, nil
}

type testEnv struct {
	router    *gin.Engine
	store     *service.ContractStore
	fs        afero.Fs
	completer *scriptedCompleter
}

// newTestEnv wires the real pipeline with inline analysis and a scripted provider
func newTestEnv(t *testing.T, replies ...string) *testEnv {
	t.Helper()
	if len(replies) == 0 {
		replies = []string{wellFormedReport}
	}

	env := &testEnv{
		store:     service.NewContractStore(&config.StoreConfig{}),
		fs:        afero.NewMemMapFs(),
		completer: &scriptedCompleter{replies: replies},
	}
	files := service.NewLocalStorageFs(env.fs)
	client := analysis.NewClientWithCompleter(env.completer, &config.AIConfig{
		Provider: config.ProviderAnthropic,
		Model:    "test-model",
		Timeout:  time.Second,
	})
	scheduler := analysis.NewInline(analysis.NewAnalyzer(env.store, client))
	svc := service.NewUploadService(env.store, files, extract.New(files), scheduler, maxUpload)
	h := NewContractHandler(svc, env.store, maxUpload)

	env.router = gin.New()
	api := env.router.Group("/api", func(c *gin.Context) {
		c.Set("tenant", c.GetHeader("X-Tenant"))
		c.Next()
	})
	api.POST("/contracts/upload", h.Upload)
	api.GET("/contracts", h.List)
	api.GET("/contracts/:id", h.Get)
	api.GET("/contracts/:id/status", h.GetStatus)
	api.POST("/contracts/:id/reanalyze", h.Reanalyze)
	api.GET("/contracts/:id/reanalyze", h.ReanalyzeNotAllowed)
	api.DELETE("/contracts/:id", h.Delete)
	api.GET("/stats", h.Stats)
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request, tenant string) *httptest.ResponseRecorder {
	t.Helper()
	req.Header.Set("X-Tenant", tenant)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		fmt.Fprintf(&body, "<w:p><w:r><w:t>%s</w:t></w:r></w:p>", p)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("Failed to create docx: %v", err)
	}
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body.String())
	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close docx: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, title, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if title != "" {
		mw.WriteField("title", title)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(content)
	}
	mw.Close()

	req := httptest.NewRequest("POST", "/api/contracts/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (e *testEnv) upload(t *testing.T, tenant, title string) ContractSummary {
	t.Helper()
	docx := buildDOCX(t, "CONTRATTO DI LOCAZIONE", "Il conduttore paga il canone mensile.")
	w := e.do(t, uploadRequest(t, title, "locazione.docx", docx), tenant)
	if w.Code != http.StatusCreated {
		t.Fatalf("Upload failed with %d: %s", w.Code, w.Body.String())
	}
	var summary ContractSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	return summary
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
}

func TestContractHandlerUploadAndGet(t *testing.T) {
	env := newTestEnv(t)

	summary := env.upload(t, "tenant1", "Locazione ufficio Milano")

	if !summary.Analyzed || summary.Status != model.StatusAnalyzed {
		t.Errorf("Expected analyzed contract, got %+v", summary)
	}
	if summary.ContractType != model.TypeRental || summary.ContractTypeLabel != "Contratto di Locazione" {
		t.Errorf("Expected rental contract, got %s (%s)", summary.ContractType, summary.ContractTypeLabel)
	}
	if summary.RiskLevel != model.RiskHigh {
		t.Errorf("Expected risk high from two high clauses, got %s", summary.RiskLevel)
	}

	w := env.do(t, httptest.NewRequest("GET", "/api/contracts/"+summary.ID, nil), "tenant1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var detail struct {
		ID            string             `json:"id"`
		Title         string             `json:"title"`
		ExtractedText string             `json:"extracted_text"`
		Parties       string             `json:"parties"`
		RiskLabel     string             `json:"risk_level_label"`
		RiskClauses   []model.RiskClause `json:"risk_clauses"`
		Deadlines     []model.Deadline   `json:"deadlines"`
	}
	decode(t, w, &detail)

	if detail.Title != "Locazione ufficio Milano" {
		t.Errorf("Unexpected title %q", detail.Title)
	}
	if detail.ExtractedText != "CONTRATTO DI LOCAZIONE Il conduttore paga il canone mensile." {
		t.Errorf("Unexpected extracted text %q", detail.ExtractedText)
	}
	if len(detail.RiskClauses) != 2 || len(detail.Deadlines) != 1 {
		t.Errorf("Expected 2 clauses and 1 deadline, got %d and %d", len(detail.RiskClauses), len(detail.Deadlines))
	}
	if detail.RiskLabel != "Alto" {
		t.Errorf("Expected label Alto, got %q", detail.RiskLabel)
	}
	if !strings.Contains(detail.Parties, "Alfa S.r.l.") {
		t.Errorf("Unexpected parties %q", detail.Parties)
	}
}

func TestContractHandlerUploadRejected(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		filename string
		content  []byte
		status   int
		message  string
	}{
		{"no file", "Titolo", "", nil, http.StatusBadRequest, "Nessun file fornito"},
		{"wrong extension", "Titolo", "contratto.txt", []byte("testo"), http.StatusUnsupportedMediaType, "Sono supportati solo file PDF e DOCX (ricevuto .txt)"},
		{"no extension", "Titolo", "contratto", []byte("testo"), http.StatusUnsupportedMediaType, "Sono supportati solo file PDF e DOCX (file senza estensione)"},
		{"too large", "Titolo", "grande.pdf", bytes.Repeat([]byte("a"), maxUpload+1), http.StatusBadRequest, "Il file non può superare i 10MB"},
		{"missing title", "", "contratto.pdf", []byte("%PDF"), http.StatusBadRequest, "Il titolo è obbligatorio"},
		{"corrupt document", "Titolo", "rotto.docx", []byte("not a zip"), http.StatusUnprocessableEntity, "Errore nell'elaborazione del file: failed to open docx: zip: not a valid zip file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, uploadRequest(t, tt.title, tt.filename, tt.content), "tenant1")
			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}

			var resp map[string]string
			decode(t, w, &resp)
			if !strings.Contains(resp["error"], tt.message) {
				t.Errorf("Expected error %q, got %q", tt.message, resp["error"])
			}
			if env.store.Count() != 0 {
				t.Error("Expected no contract to be created")
			}
			if env.completer.calls != 0 {
				t.Error("Expected no AI call")
			}
		})
	}
}

func TestContractHandlerMalformedResponse(t *testing.T) {
	env := newTestEnv(t, "Mi dispiace, non posso analizzare questo documento.")

	summary := env.upload(t, "tenant1", "Locazione")

	if !summary.Analyzed {
		t.Error("Expected contract to be marked analyzed")
	}
	if summary.RiskLevel != model.RiskMedium {
		t.Errorf("Expected medium risk on fallback, got %s", summary.RiskLevel)
	}
	if summary.ContractType != model.TypeRental {
		t.Errorf("Expected classifier type, got %s", summary.ContractType)
	}
}

func TestContractHandlerTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	summary := env.upload(t, "tenant1", "Locazione")

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/contracts/"+summary.ID, nil),
		httptest.NewRequest("GET", "/api/contracts/"+summary.ID+"/status", nil),
		httptest.NewRequest("POST", "/api/contracts/"+summary.ID+"/reanalyze", nil),
		httptest.NewRequest("DELETE", "/api/contracts/"+summary.ID, nil),
	} {
		w := env.do(t, req, "tenant2")
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404 for another tenant, got %d", req.Method, req.URL.Path, w.Code)
		}
	}

	w := env.do(t, httptest.NewRequest("GET", "/api/contracts", nil), "tenant2")
	var list struct {
		Total int `json:"total"`
	}
	decode(t, w, &list)
	if list.Total != 0 {
		t.Errorf("Expected empty list for another tenant, got %d", list.Total)
	}
}

func TestContractHandlerList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 12; i++ {
		c := &model.Contract{
			ID:         fmt.Sprintf("c%02d", i),
			Tenant:     "tenant1",
			Title:      fmt.Sprintf("Contratto %d", i),
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
			Status:     model.StatusPending,
		}
		env.store.Create(ctx, c)
		risk := model.RiskLow
		if i%4 == 0 {
			risk = model.RiskCritical
		}
		env.store.SaveAnalysis(ctx, c.ID, &model.Analysis{ContractType: model.TypeService, RiskLevel: risk, AnalyzedAt: base})
	}

	type listResponse struct {
		Contracts  []ContractSummary `json:"contracts"`
		Total      int               `json:"total"`
		Page       int               `json:"page"`
		TotalPages int               `json:"total_pages"`
	}

	tests := []struct {
		name      string
		query     string
		wantLen   int
		wantTotal int
		wantPage  int
		wantFirst string
	}{
		{"first page", "", 10, 12, 1, "c11"},
		{"second page", "?page=2", 2, 12, 2, "c01"},
		{"invalid page", "?page=abc", 10, 12, 1, "c11"},
		{"page past end", "?page=9", 2, 12, 2, "c01"},
		{"risk filter", "?risk=critical", 3, 3, 1, "c08"},
		{"type filter", "?type=nda", 0, 0, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, httptest.NewRequest("GET", "/api/contracts"+tt.query, nil), "tenant1")
			if w.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", w.Code)
			}

			var resp listResponse
			decode(t, w, &resp)
			if len(resp.Contracts) != tt.wantLen || resp.Total != tt.wantTotal || resp.Page != tt.wantPage {
				t.Errorf("Got %d contracts of %d on page %d", len(resp.Contracts), resp.Total, resp.Page)
			}
			if tt.wantFirst != "" && len(resp.Contracts) > 0 && resp.Contracts[0].ID != tt.wantFirst {
				t.Errorf("Expected first contract %s, got %s", tt.wantFirst, resp.Contracts[0].ID)
			}
		})
	}
}

func TestContractHandlerReanalyze(t *testing.T) {
	oneClause := `{"risk_clauses": [{"clause": "Art. 3", "risk": "Foro esclusivo", "severity": "medium", "recommendation": "Negoziare"}], "deadlines": []}`
	env := newTestEnv(t, wellFormedReport, oneClause)
	summary := env.upload(t, "tenant1", "Locazione")

	w := env.do(t, httptest.NewRequest("POST", "/api/contracts/"+summary.ID+"/reanalyze", nil), "tenant1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "success" || resp["message"] != "Rianalisi completata" {
		t.Errorf("Unexpected response %v", resp)
	}

	clauses, _ := env.store.RiskClauses(context.Background(), summary.ID)
	deadlines, _ := env.store.Deadlines(context.Background(), summary.ID)
	if len(clauses) != 1 || len(deadlines) != 0 {
		t.Errorf("Expected 1 clause and 0 deadlines after reanalysis, got %d and %d", len(clauses), len(deadlines))
	}
	contract, _ := env.store.Get(context.Background(), summary.ID)
	if contract.RiskLevel != model.RiskLow {
		t.Errorf("Expected low risk without high clauses, got %s", contract.RiskLevel)
	}
}

func TestContractHandlerReanalyzeErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest("POST", "/api/contracts/missing/reanalyze", nil), "tenant1")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "error" || resp["message"] != "Contratto non trovato" {
		t.Errorf("Unexpected response %v", resp)
	}

	w = env.do(t, httptest.NewRequest("GET", "/api/contracts/any/reanalyze", nil), "tenant1")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
	decode(t, w, &resp)
	if resp["status"] != "error" || resp["message"] != "Metodo non consentito" {
		t.Errorf("Unexpected response %v", resp)
	}
}

func TestContractHandlerStatusDeleteAndStats(t *testing.T) {
	env := newTestEnv(t)
	first := env.upload(t, "tenant1", "Primo")
	env.upload(t, "tenant1", "Secondo")

	w := env.do(t, httptest.NewRequest("GET", "/api/contracts/"+first.ID+"/status", nil), "tenant1")
	var status map[string]any
	decode(t, w, &status)
	if status["status"] != model.StatusAnalyzed || status["analyzed"] != true {
		t.Errorf("Unexpected status %v", status)
	}

	w = env.do(t, httptest.NewRequest("GET", "/api/stats", nil), "tenant1")
	var stats StatsResponse
	decode(t, w, &stats)
	if stats.Total != 2 || stats.Analyzed != 2 || stats.HighRisk != 2 || len(stats.Recent) != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	w = env.do(t, httptest.NewRequest("DELETE", "/api/contracts/"+first.ID, nil), "tenant1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if _, err := env.store.Get(context.Background(), first.ID); err == nil {
		t.Error("Expected contract to be deleted")
	}
	if exists, _ := afero.Exists(env.fs, "tenant1/"+first.ID+"/locazione.docx"); exists {
		t.Error("Expected stored file to be deleted")
	}

	w = env.do(t, httptest.NewRequest("DELETE", "/api/contracts/"+first.ID, nil), "tenant1")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 on second delete, got %d", w.Code)
	}
}

// queuedService accepts every upload and leaves it pending, like the worker queue
type queuedService struct {
	ContractService
	reanalyzed []string
}

func (s *queuedService) Upload(ctx context.Context, req service.UploadRequest) (*model.Contract, error) {
	return &model.Contract{ID: "queued", Tenant: req.Tenant, Title: req.Title, Status: model.StatusPending}, nil
}

func (s *queuedService) Reanalyze(ctx context.Context, tenant, id string) error {
	s.reanalyzed = append(s.reanalyzed, id)
	return nil
}

func (s *queuedService) Async() bool { return true }

func TestContractHandlerAsync(t *testing.T) {
	svc := &queuedService{}
	h := NewContractHandler(svc, service.NewContractStore(&config.StoreConfig{}), maxUpload)

	router := gin.New()
	router.POST("/upload", h.Upload)
	router.POST("/contracts/:id/reanalyze", h.Reanalyze)

	req := uploadRequest(t, "Titolo", "a.pdf", []byte("%PDF"))
	req.URL.Path = "/upload"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d", w.Code)
	}
	var summary ContractSummary
	decode(t, w, &summary)
	if summary.Status != model.StatusPending || summary.Analyzed {
		t.Errorf("Expected pending contract, got %+v", summary)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/contracts/c1/reanalyze", nil))
	var resp map[string]string
	decode(t, w, &resp)
	if resp["status"] != "success" || resp["message"] != "Rianalisi avviata" {
		t.Errorf("Unexpected response %v", resp)
	}
	if len(svc.reanalyzed) != 1 || svc.reanalyzed[0] != "c1" {
		t.Errorf("Expected reanalysis of c1, got %v", svc.reanalyzed)
	}
}
