package predict

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
)

// fixed is a Method that always returns the same score.
type fixed struct {
	name  string
	score float64
	class Class
}

func (f fixed) Name() string { return f.name }

func (f fixed) Supports(allele string, length int) bool { return ClassOf(allele) == f.class }

func (f fixed) Predict(context.Context, string, string, int) (float64, error) { return f.score, nil }

func TestClassOf(t *testing.T) {
	tests := []struct {
		allele string
		want   Class
	}{
		{"HLA-A*02:01", ClassI},
		{"HLA-B*07:02", ClassI},
		{"H-2-Kb", ClassI},
		{"DRB1*11:01", ClassII},
		{"HLA-DQA1*01:02-DQB1*06:02", ClassII},
		{"HLA-DPA1*01:03-DPB1*02:01", ClassII},
	}
	for _, tt := range tests {
		t.Run(tt.allele, func(t *testing.T) {
			if got := ClassOf(tt.allele); got != tt.want {
				t.Errorf("ClassOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in      string
		want    Metric
		wantErr bool
	}{
		{"median", Median, false},
		{"", Median, false},
		{" Lowest ", Lowest, false},
		{"mean", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMetric(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMetric(%q) = (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestEnsemble_Predict(t *testing.T) {
	methods := []Method{
		fixed{"a", 300, ClassI},
		fixed{"b", 100, ClassI},
		fixed{"c", 900, ClassI},
		fixed{"d", 50, ClassII},
	}

	tests := []struct {
		name    string
		methods []Method
		metric  Metric
		allele  string
		want    float64
		wantErr error
	}{
		{"median of odd count", methods, Median, "HLA-A*02:01", 300, nil},
		{"median of even count", methods[:2], Median, "HLA-A*02:01", 200, nil},
		{"lowest", methods, Lowest, "HLA-A*02:01", 100, nil},
		{"only class II supports", methods, Median, "DRB1*01:01", 50, nil},
		{"nothing supports", methods[:1], Median, "DRB1*01:01", 0, ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEnsemble(tt.methods, tt.metric)
			got, err := e.Predict(context.Background(), "SIINFEKL", tt.allele, 8)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Ensemble.Predict() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Ensemble.Predict() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := NewEnsemble(methods[:2], Lowest).Name(); got != "lowest(a,b)" {
		t.Errorf("Ensemble.Name() = %q", got)
	}
}

func Test_parseIEDB(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		seq     string
		want    float64
		wantErr bool
	}{
		{
			"class I response",
			"allele\tseq_num\tstart\tend\tlength\tpeptide\tic50\tpercentile_rank\n" +
				"HLA-A*02:01\t1\t1\t9\t9\tSLYNTVATL\t21.3\t0.4\n",
			"SLYNTVATL",
			21.3,
			false,
		},
		{
			"log lines before the header",
			"Loading models...\nallele\tpeptide\tic50\nHLA-A*02:01\tAAAAAAAAA\t1000\nHLA-A*02:01\tAAAAAAAAA\t800\n",
			"AAAAAAAAA",
			800,
			false,
		},
		{
			"other peptides ignored",
			"allele\tpeptide\tic50\nHLA-A*02:01\tCCCCCCCCC\t5\nHLA-A*02:01\tAAAAAAAAA\t600\n",
			"AAAAAAAAA",
			600,
			false,
		},
		{"no header", "Invalid allele", "AAAAAAAAA", 0, true},
		{"no rows", "allele\tpeptide\tic50\n", "AAAAAAAAA", 0, true},
		{"bad score", "allele\tpeptide\tic50\nA\tAAAAAAAAA\t-\n", "AAAAAAAAA", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIEDB([]byte(tt.out), tt.seq)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseIEDB() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseIEDB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_parseMHCflurry(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    float64
		wantErr bool
	}{
		{
			"current columns",
			"allele,peptide,mhcflurry_affinity,mhcflurry_affinity_percentile\nHLA-A0201,SIINFEKL,1234.5,2.1\n",
			1234.5,
			false,
		},
		{
			"legacy columns",
			"allele,peptide,mhcflurry_prediction,mhcflurry_prediction_low\nHLA-A0201,SIINFEKL,42,30\n",
			42,
			false,
		},
		{"missing column", "allele,peptide\nHLA-A0201,SIINFEKL\n", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMHCflurry([]byte(tt.out), "SIINFEKL")
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseMHCflurry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseMHCflurry() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIEDBAPI_Predict(t *testing.T) {
	var got url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		path = r.URL.Path
		io.WriteString(w, "allele\tpeptide\tic50\n"+got.Get("allele")+"\t"+got.Get("sequence_text")+"\t321.5\n")
	}))
	defer srv.Close()

	methods, err := New([]string{"NetMHC", "NetMHCIIpan"}, Options{IEDBURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	ic50, err := methods[0].Predict(context.Background(), "SLYNTVATL", "HLA-A*02:01", 9)
	if err != nil || ic50 != 321.5 {
		t.Fatalf("Predict() = (%v, %v), want (321.5, nil)", ic50, err)
	}
	want := url.Values{
		"sequence_text": {"SLYNTVATL"},
		"method":        {"ann"},
		"allele":        {"HLA-A*02:01"},
		"length":        {"9"},
		"user_tool":     {"pVac-seq"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("IEDB form = %v, want %v", got, want)
	}
	if path != "/mhci/" {
		t.Errorf("class I path = %q", path)
	}

	if _, err = methods[1].Predict(context.Background(), "AAAAAAAAAAAAAAA", "HLA-DQA1*01:02-DQB1*06:02", 15); err != nil {
		t.Fatal(err)
	}
	if got.Get("allele") != "HLA-DQA1*01:02/DQB1*06:02" || got.Get("length") != "" || path != "/mhcii/" {
		t.Errorf("class II request = %v at %s", got, path)
	}
}

func TestIEDBAPI_Predict_errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"server error is transient", http.StatusInternalServerError, true},
		{"bad gateway is transient", http.StatusBadGateway, true},
		{"bad request is not", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			methods, err := New([]string{"SMM"}, Options{IEDBURL: srv.URL})
			if err != nil {
				t.Fatal(err)
			}

			_, err = methods[0].Predict(context.Background(), "SLYNTVATL", "HLA-A*02:01", 9)
			var ie *InvocationError
			if !errors.As(err, &ie) {
				t.Fatalf("Predict() error = %v, want *InvocationError", err)
			}
			if IsTransient(err) != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", IsTransient(err), tt.wantTransient)
			}
			if calls != 1 {
				t.Errorf("IEDB called %d times, retries belong to the caller", calls)
			}
		})
	}
}

func TestNew(t *testing.T) {
	methods, err := New([]string{"NetMHCpan", "netmhcpan", " MHCflurry "}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, m := range methods {
		names = append(names, m.Name())
	}
	if !reflect.DeepEqual(names, []string{"NetMHCpan", "MHCflurry"}) {
		t.Errorf("New() names = %v", names)
	}

	if _, err := New([]string{"NetMHCpan", "DeepMagic"}, Options{}); err == nil || !strings.Contains(err.Error(), "DeepMagic") {
		t.Errorf("New() with unknown method error = %v", err)
	}
	if _, err := New(nil, Options{}); err == nil {
		t.Error("New() without methods succeeded")
	}

	local, err := New([]string{"SMM"}, Options{IEDBInstallDir: "/opt/iedb"})
	if err != nil {
		t.Fatal(err)
	}
	if l, ok := local[0].(*iedbLocal); !ok || l.script != "/opt/iedb/mhc_i/src/predict_binding.py" {
		t.Errorf("New() with install dir = %#v", local[0])
	}
}
