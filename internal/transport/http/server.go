package httpx

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/service"
)

func NewServer(addr string, hub *service.HubService) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(jobsPageHTML))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, hub.Health())
	})
	mux.HandleFunc("/api/tag-counts", func(w http.ResponseWriter, _ *http.Request) {
		counts, err := hub.GetTagCounts()
		if err != nil {
			writeError(w, err)
			return
		}
		total, err := hub.CountSamples()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"counts": counts,
			"total":  total,
		})
	})
	mux.HandleFunc("/api/targets", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, hub.ListTargets())
	})
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			job, err := hub.GetJob(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
			return
		}
		jobs, err := hub.ListJobs()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	})
	mux.HandleFunc("/api/job-events", func(w http.ResponseWriter, r *http.Request) {
		events, err := hub.ListJobEvents(r.URL.Query().Get("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if appErr, ok := domain.AsAppError(err); ok {
		switch appErr.Code {
		case domain.CodeInvalidArgument:
			code = http.StatusBadRequest
		case domain.CodeNotFound:
			code = http.StatusNotFound
		case domain.CodeFailedPrecondition:
			code = http.StatusConflict
		case domain.CodeResourceExhausted:
			code = http.StatusTooManyRequests
		case domain.CodeUnauthenticated:
			code = http.StatusUnauthorized
		}
	}
	writeJSON(w, code, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("http json encode error: %v", err)
	}
}

const jobsPageHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>YOLO Tuner Jobs</title>
  <style>
    :root {
      --bg: #08161f;
      --bg2: #102534;
      --card: rgba(12, 28, 39, 0.78);
      --line: #2a4b63;
      --text: #e5f4ff;
      --muted: #9bbacf;
      --accent: #54f2b2;
      --warn: #ffca63;
      --danger: #ff6b7d;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--text);
      background: linear-gradient(130deg, var(--bg), var(--bg2));
      font-family: "Segoe UI", sans-serif;
      min-height: 100vh;
    }
    .shell { max-width: 1020px; margin: 0 auto; padding: 28px 18px 40px; }
    .headline { display: flex; justify-content: space-between; align-items: end; gap: 14px; margin-bottom: 18px; }
    h1 { margin: 0; letter-spacing: 0.04em; font-weight: 700; }
    .tag { color: var(--muted); font-family: monospace; font-size: 12px; }
    .cards { display: grid; grid-template-columns: repeat(4, minmax(0, 1fr)); gap: 10px; margin-bottom: 14px; }
    .card { background: var(--card); border: 1px solid var(--line); border-radius: 12px; padding: 12px; }
    .k { font-family: monospace; font-size: 11px; color: var(--muted); margin-bottom: 8px; text-transform: uppercase; }
    .v { font-size: 1.3rem; font-weight: 700; }
    button {
      border-radius: 10px; border: 1px solid #3f6f91;
      background: rgba(77, 182, 255, 0.22); color: var(--text);
      padding: 10px 14px; font: inherit; cursor: pointer; font-weight: 600;
    }
    .table-wrap { background: var(--card); border: 1px solid var(--line); border-radius: 12px; overflow: auto; }
    table { width: 100%; border-collapse: collapse; min-width: 760px; }
    th, td { padding: 10px 11px; text-align: left; border-bottom: 1px solid rgba(42, 75, 99, 0.55); font-size: 14px; }
    th { font-size: 11px; color: var(--muted); text-transform: uppercase; }
    .mono { font-family: monospace; }
    .ok { color: var(--accent); }
    .bad { color: var(--danger); }
    .warn { color: var(--warn); }
  </style>
</head>
<body>
  <main class="shell">
    <section class="headline">
      <div>
        <h1>YOLO Tuner Jobs</h1>
        <div class="tag">Read-only view of dataset splits and fine-tune job history.</div>
      </div>
      <button id="refreshBtn">Refresh</button>
    </section>

    <section class="cards">
      <article class="card"><div class="k">Samples</div><div id="total" class="v">-</div></article>
      <article class="card"><div class="k">Train</div><div id="train" class="v">-</div></article>
      <article class="card"><div class="k">Val</div><div id="val" class="v">-</div></article>
      <article class="card"><div class="k">Queue Depth</div><div id="queueDepth" class="v">-</div></article>
    </section>

    <section class="table-wrap">
      <table>
        <thead>
          <tr>
            <th>Job</th>
            <th>Operator</th>
            <th>Target</th>
            <th>Status</th>
            <th>Updated</th>
            <th>Error</th>
          </tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
    </section>
  </main>
  <script>
    async function fetchJSON(url) {
      const res = await fetch(url);
      if (!res.ok) throw new Error(await res.text());
      return res.json();
    }

    async function refresh() {
      const tagCounts = await fetchJSON("/api/tag-counts");
      document.getElementById("total").textContent = tagCounts.total;
      document.getElementById("train").textContent = tagCounts.counts.train || 0;
      document.getElementById("val").textContent = tagCounts.counts.val || 0;

      const health = await fetchJSON("/api/health");
      document.getElementById("queueDepth").textContent = health.queue_depth;

      const jobs = await fetchJSON("/api/jobs");
      const rows = document.getElementById("rows");
      rows.innerHTML = "";
      jobs.forEach((job) => {
        const tr = document.createElement("tr");
        const statusCls = job.status === "succeeded" ? "ok" : job.status === "failed" ? "bad" : "warn";
        tr.innerHTML =
          '<td class="mono">' + job.id + '</td>' +
          '<td>' + job.operator + '</td>' +
          '<td class="mono">' + (job.target || "-") + '</td>' +
          '<td class="mono ' + statusCls + '">' + job.status + '</td>' +
          '<td class="mono">' + job.updated_at + '</td>' +
          '<td>' + (job.last_error || "") + '</td>';
        rows.appendChild(tr);
      });
    }

    document.getElementById("refreshBtn").addEventListener("click", () => refresh().catch(console.error));
    refresh().catch(console.error);
  </script>
</body>
</html>`
