package casa

import (
	"fmt"
	"strconv"
	"strings"
	"text/template"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// arg is one keyword argument of a CASA task call.
type arg struct {
	Key   string
	Value interface{}
}

type taskScript struct {
	Reply string
	Task  string
	Args  []arg
	// Result selects how the task output is reported: "", "summary" or "mean".
	Result string
}

type metadataScript struct {
	Reply string
	Vis   string
}

var scripts = template.Must(template.New("casa").Funcs(template.FuncMap{
	"py":     pyLiteral,
	"pyargs": pyArgs,
}).Parse(`
{{- define "prelude" -}}
import json
import traceback

from casatasks import *
from casatools import msmetadata, table

_reply = {{py .Reply}}


def _done(result=None, error=""):
    with open(_reply, "w") as fh:
        json.dump({"ok": not error, "error": error, "result": result}, fh)

{{end}}

{{- define "task" -}}
{{template "prelude" .}}
try:
    _out = {{.Task}}({{pyargs .Args}})
{{- if eq .Result "summary"}}
    _fields = _out.get("field", {}) if isinstance(_out, dict) else {}
    _done({k: {"flagged": float(v["flagged"]), "total": float(v["total"])} for k, v in _fields.items()})
{{- else if eq .Result "mean"}}
    _done(float(_out["DATA_DESC_ID=0"]["mean"]))
{{- else}}
    _done()
{{- end}}
except Exception:
    _done(error=traceback.format_exc())
{{end}}

{{- define "metadata" -}}
{{template "prelude" .}}
_corr_names = {5: "RR", 6: "RL", 7: "LR", 8: "LL", 9: "XX", 10: "XY", 11: "YX", 12: "YY"}
try:
    msmd = msmetadata()
    msmd.open({{py .Vis}})
    _fields = list(msmd.fieldnames())
    _scans = {f: sorted(int(s) for s in msmd.scansforfield(f)) for f in _fields}
    _all = sorted(int(s) for s in msmd.scannumbers())
    _ants = list(msmd.antennanames(msmd.antennasforscan(_all[0]))) if _all else []
    _freqs = [float(f) for f in msmd.chanfreqs(0)]
    _nspw = int(msmd.nspw())
    msmd.close()
    tb = table()
    tb.open({{py .Vis}} + "/POLARIZATION")
    _codes = [int(c) for c in tb.getcol("CORR_TYPE")[:, 0]]
    tb.close()
    _done({
        "fields": _fields,
        "scans": _scans,
        "antennas": _ants,
        "freqs": _freqs,
        "correlations": [_corr_names.get(c, str(c)) for c in _codes],
        "spws": _nspw,
    })
except Exception:
    _done(error=traceback.format_exc())
{{end}}
`))

// pyLiteral renders a Go value as a Python literal.
func pyLiteral(v interface{}) (string, error) {
	switch x := v.(type) {
	case nil:
		return "None", nil
	case bool:
		if x {
			return "True", nil
		}
		return "False", nil
	case string:
		b, err := json.Marshal(x)
		return string(b), err
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case []string:
		items := make([]string, len(x))
		for i, s := range x {
			lit, err := pyLiteral(s)
			if err != nil {
				return "", err
			}
			items[i] = lit
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []int:
		items := make([]string, len(x))
		for i, n := range x {
			items[i] = strconv.Itoa(n)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []float64:
		items := make([]string, len(x))
		for i, f := range x {
			items[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		return "", fmt.Errorf("no python literal for %T", v)
	}
}

func pyArgs(args []arg) (string, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		lit, err := pyLiteral(a.Value)
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", a.Key, err)
		}
		parts = append(parts, a.Key+"="+lit)
	}
	return strings.Join(parts, ", "), nil
}

func render(name string, data interface{}) (string, error) {
	var b strings.Builder
	if err := scripts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s script: %w", name, err)
	}
	return b.String(), nil
}

// reply is the JSON document every script writes before exiting.
type reply struct {
	OK     bool                `json:"ok"`
	Error  string              `json:"error"`
	Result jsoniter.RawMessage `json:"result"`
}

type metadataReply struct {
	Fields       []string         `json:"fields"`
	Scans        map[string][]int `json:"scans"`
	Antennas     []string         `json:"antennas"`
	Freqs        []float64        `json:"freqs"`
	Correlations []string         `json:"correlations"`
	SPWs         int              `json:"spws"`
}

type fieldFlags struct {
	Flagged float64 `json:"flagged"`
	Total   float64 `json:"total"`
}
