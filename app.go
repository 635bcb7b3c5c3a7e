package main

import (
	"context"

	"github.com/Aafimalek/animation-genai/config"
	"github.com/Aafimalek/animation-genai/generator"
	"github.com/Aafimalek/animation-genai/pipeline"
	"github.com/Aafimalek/animation-genai/publisher"
	"github.com/Aafimalek/animation-genai/renderer"
	"github.com/Aafimalek/animation-genai/workspace"
)

func newWorkspaces(cfg *config.Config) *workspace.Manager {
	return workspace.NewManager(cfg.Workspace.Root, cfg.Workspace.Prefix, logger.Named("workspace"))
}

// buildLoop wires the correction loop from configuration. Without a model the
// loop can only render supplied scripts in a single attempt.
func buildLoop(ctx context.Context, cfg *config.Config, withModel bool) (*pipeline.Loop, error) {
	rnd, err := renderer.New(renderer.Options{
		Binary:         cfg.Render.Binary,
		Scene:          cfg.Render.Scene,
		Quality:        cfg.Render.Quality,
		Timeout:        cfg.Render.Timeout,
		MaxOutputBytes: cfg.Render.MaxOutputBytes,
		ExtraArgs:      cfg.Render.ExtraArgs,
	}, nil, logger.Named("renderer"))
	if err != nil {
		return nil, err
	}

	pub, err := publisher.New(publisher.Config{
		Dir:        cfg.Output.Dir,
		WebhookURL: cfg.Output.WebhookURL,
	}, nil, logger.Named("publisher"))
	if err != nil {
		return nil, err
	}

	opts := pipeline.Options{
		Renderer:   rnd,
		Workspaces: newWorkspaces(cfg),
		Publisher:  pub,
		KeepFailed: cfg.Workspace.KeepFailed,
		Logger:     logger.Named("pipeline"),
	}
	if withModel {
		llm, err := generator.NewLLM(ctx, cfg.LLM, logger.Named("llm"))
		if err != nil {
			return nil, err
		}
		agent, err := generator.NewAgent(llm)
		if err != nil {
			return nil, err
		}
		opts.Agent = agent
	}
	return pipeline.New(opts)
}
