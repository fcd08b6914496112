package echoapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/carematrix/apps/api/echo"
	"github.com/trezcool/carematrix/core"
	"github.com/trezcool/carematrix/core/reconcile"
	"github.com/trezcool/carematrix/core/training"
	"github.com/trezcool/carematrix/services/metrics"
	inmemdb "github.com/trezcool/carematrix/storage/database/inmem"
	"github.com/trezcool/carematrix/tests"
)

var store training.Store

func setup(t *testing.T) echoapi.Server {
	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	store = inmemdb.NewStore(db)
	testutil.SeedDirectory(t, store.(training.DirectoryImporter))
	return newServer(t, store)
}

func newServer(t *testing.T, st training.Store) echoapi.Server {
	conf := &core.Config{
		AppName:  "CareMatrix",
		TestMode: true,
		Reconcile: core.ReconcileConfig{
			Deadline:            time.Minute,
			LocationConcurrency: 2,
			WriteConcurrency:    2,
			WriteRetries:        1,
			RetryBackoff:        time.Millisecond,
			HeaderScanRows:      15,
		},
	}
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	recorder := metrics.NewRecorder()

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:           conf,
		Logger:         testutil.Logger{},
		Pipeline:       reconcile.NewPipeline(st, testutil.Logger{}, recorder, conf.Reconcile),
		Overrider:      reconcile.NewOverrider(st, validate, testutil.Logger{}, conf.Reconcile),
		Anomalies:      st,
		Metrics:        recorder.Handler(),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Close() })
	return app
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name        string
	method      string
	path        string
	body        []byte
	contentType string
	wantCode    int
	wantData    []byte
}

func newRequest(method, path, contentType string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	return req, rec
}

// multipartBody encodes content as the `field` file of a multipart form.
func multipartBody(t *testing.T, field, filename, content string) ([]byte, string) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("CreateFormFile() failed: %v", err)
		}
		_, _ = io.WriteString(fw, content)
	} else {
		_ = w.WriteField("note", content)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("multipart.Close() failed: %v", err)
	}
	return body.Bytes(), w.FormDataContentType()
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decodeRunResult(t *testing.T, rec *httptest.ResponseRecorder) reconcile.RunResult {
	t.Helper()
	var res reconcile.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
	return res
}
