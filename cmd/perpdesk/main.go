package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest"

	"perpdesk/internal/cli"
	"perpdesk/internal/config"
	"perpdesk/internal/handler"
	"perpdesk/internal/svc"
)

var configFile = flag.String("f", "etc/perpdesk.yaml", "the config file")

func main() {
	flag.Parse()

	cfg := config.MustLoad(*configFile)
	logx.MustSetup(cfg.Log)
	logx.DisableStat()
	cli.LogConfigSummary(cfg)

	svcCtx, err := svc.NewServiceContext(cfg)
	if err != nil {
		logx.Must(err)
	}
	defer svcCtx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svcCtx.Run(ctx)

	server := rest.MustNewServer(cfg.RestConf)
	defer server.Stop()
	handler.RegisterHandlers(server, svcCtx)

	fmt.Printf("Starting server at %s:%d...\n", cfg.Host, cfg.Port)
	server.Start()
}
