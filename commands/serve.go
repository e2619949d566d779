package commands

import (
	"net/http"
	"strconv"

	"github.com/fatih/color"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stardustagi/gptshell/libs/server"
	"github.com/stardustagi/gptshell/llm/models"
	"github.com/stardustagi/gptshell/protocol"
	"github.com/stardustagi/gptshell/services"
)

// ServeCommand serve
type ServeCommand struct {
	inv *invocation
}

func (c *ServeCommand) Execute(_ []string) error {
	if err := c.inv.begin(); err != nil {
		return err
	}
	srv, err := c.inv.httpServer()
	if err != nil {
		return err
	}
	s := server.NewServer(c.inv.ctx)
	defer s.Stop()
	go s.HandleSignal()

	color.New(color.FgGreen).Fprintf(c.inv.rt.Err, "serving on http://%s\n", srv.Addr())
	return srv.Startup(s.Ctx)
}

// HistoryReq GET /api/history/:category
type HistoryReq struct {
	Category string `param:"category" validate:"required"`
}

// httpServer 根据配置与 --http.* 参数构建 HTTP 门面
func (inv *invocation) httpServer() (*server.HttpServer, error) {
	rt := inv.rt
	cfg := server.HttpServerConfig{
		Address:    rt.serverCfg.Address,
		Port:       rt.serverCfg.Port,
		Path:       inv.opts.Http.Path,
		Cors:       inv.opts.Http.Cors,
		RequestLog: inv.opts.Http.RequestLog,
	}
	if inv.opts.Http.Address != "" {
		cfg.Address = inv.opts.Http.Address
	}
	if inv.opts.Http.Port != 0 {
		cfg.Port = inv.opts.Http.Port
	}
	srv, err := server.NewHttpServer(cfg, rt.services.Validator())
	if err != nil {
		return nil, err
	}

	srv.Post("text", server.NewHandler("text", []string{"text"},
		func(c echo.Context, req services.TextParams, _ struct{}) error {
			req.KeyPath = rt.keyPath(req.KeyPath)
			plan, err := rt.services.Text.Plan(req)
			return respond(c, plan, err, rt.services.Text)
		}).WithDefaults(services.DefaultTextParams))

	srv.Post("image", server.NewHandler("image", []string{"image"},
		func(c echo.Context, req services.ImageParams, _ struct{}) error {
			req.KeyPath = rt.keyPath(req.KeyPath)
			plan, err := rt.services.Image.Plan(req)
			return respond(c, plan, err, rt.services.Image)
		}).WithDefaults(services.DefaultImageParams))

	srv.Post("audio", server.NewHandler("audio", []string{"audio"},
		func(c echo.Context, req services.AudioParams, _ struct{}) error {
			req.KeyPath = rt.keyPath(req.KeyPath)
			plan, err := rt.services.Audio.Plan(req)
			return respond(c, plan, err, rt.services.Audio)
		}).WithDefaults(services.DefaultAudioParams))

	srv.Get("history/:category", server.NewHandler("history", []string{"history"},
		func(c echo.Context, req HistoryReq, _ struct{}) error {
			cats, err := models.ParseCategories(req.Category)
			if err != nil {
				return protocol.Response(c, err, nil)
			}
			return protocol.Response(c, nil, rt.history.Snapshot(cats...))
		}))

	srv.AddNativeHandler(http.MethodGet, "/metrics",
		echo.WrapHandler(promhttp.HandlerFor(rt.metrics.Registry(), promhttp.HandlerOpts{})))
	return srv, nil
}

// respond executes plan unless ?what_if=true asks for the estimate only.
func respond(c echo.Context, plan *services.Plan, err error, svc services.Service) error {
	if err != nil {
		return protocol.Response(c, err, nil)
	}
	if whatIf, _ := strconv.ParseBool(c.QueryParam("what_if")); whatIf {
		return protocol.Response(c, nil, planData(plan))
	}
	resp, err := svc.Execute(c.Request().Context(), plan)
	return protocol.Response(c, err, resp)
}
