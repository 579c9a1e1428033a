// Package report assembles the per-run HTML report and its optional PDF
// export.
package report

import (
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"
)

// TaskSection is one sub-task's slot in the report.
type TaskSection struct {
	Question  string
	Answer    string
	Query     string
	ChartFile string // basename relative to the report, empty when no chart
	Failed    bool
}

// Data is everything the template needs.
type Data struct {
	RunID       string
	Question    string
	GeneratedAt time.Time
	Tasks       []TaskSection
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Analysis Report</title>
<style>
  body { font-family: -apple-system, 'Segoe UI', sans-serif; max-width: 1000px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
  .header { background: white; padding: 30px; border-radius: 8px; margin-bottom: 20px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
  h1 { margin: 0 0 10px 0; color: #333; }
  .query-text { color: #666; font-size: 16px; }
  .task { background: white; border-left: 4px solid #4CAF50; padding: 20px; margin-bottom: 20px; border-radius: 4px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
  .task.failed { border-left-color: #e53935; }
  .task h3 { margin-top: 0; color: #4CAF50; }
  .task.failed h3 { color: #e53935; }
  .answer { line-height: 1.6; margin: 15px 0; white-space: pre-wrap; }
  .query { background: #f8f9fa; padding: 15px; font-family: 'Monaco', monospace; white-space: pre-wrap; border-radius: 4px; font-size: 13px; overflow-x: auto; margin: 15px 0; }
  img { max-width: 100%; height: auto; margin: 20px 0; border-radius: 4px; box-shadow: 0 2px 8px rgba(0,0,0,0.1); }
  summary { cursor: pointer; color: #666; font-weight: 500; padding: 8px 0; }
  .footer { text-align: center; color: #999; margin-top: 40px; padding: 20px; }
</style>
</head>
<body>
  <div class="header">
    <h1>Analysis Report</h1>
    <p class="query-text"><strong>Question:</strong> {{.Question}}</p>
    <p class="query-text">Run {{.RunID}} &middot; {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}</p>
  </div>
{{range $i, $t := .Tasks}}  <div class="task{{if $t.Failed}} failed{{end}}">
    <h3>Task {{inc $i}}: {{$t.Question}}</h3>
    <div class="answer">{{$t.Answer}}</div>
{{if $t.Query}}    <details>
      <summary>View query details</summary>
      <div class="query">{{$t.Query}}</div>
    </details>
{{end}}{{if $t.ChartFile}}    <img src="{{$t.ChartFile}}" alt="{{$t.Question}}" />
{{end}}  </div>
{{end}}  <div class="footer">Generated by askdb</div>
</body>
</html>
`))

// Write renders the report to <dir>/<runID>.html and returns the path.
func Write(dir string, data Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating reports dir: %w", err)
	}
	path := filepath.Join(dir, data.RunID+".html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	defer f.Close()
	if err := reportTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return path, nil
}
