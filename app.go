package main

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/vkngwrapper/deferred/config"
	"github.com/vkngwrapper/deferred/frame"
	"github.com/vkngwrapper/deferred/gpu"
	"github.com/vkngwrapper/deferred/logging"
	"github.com/vkngwrapper/deferred/scene"
	"github.com/vkngwrapper/deferred/swapchain"
	"github.com/vkngwrapper/deferred/uniforms"
)

type ring[T any] = uniforms.Ring[T, *gpu.HostBuffer]

// App owns the window, the device and every per-frame component, and runs
// the frame loop on the calling goroutine.
type App struct {
	logger *log.Logger
	cfg    atomic.Pointer[config.Config]

	window    *sdl.Window
	device    *gpu.Device
	shaders   *gpu.ShaderSet
	layouts   *gpu.Layouts
	targets   *swapchain.Manager[*gpu.Chain, *gpu.Attachment, *gpu.Graph]
	presenter *gpu.Presenter
	sync      *frame.Synchronizer

	viewProjection *ring[uniforms.ViewProjection]
	light          *ring[uniforms.Light]
	camera         *ring[uniforms.Camera]

	scene    *scene.Scene
	animator *scene.Animator

	start     time.Duration
	stats     *frameStats
	rendering bool
}

func NewApp(cfg *config.Config, logger *log.Logger) *App {
	app := &App{
		logger:    logger,
		rendering: true,
	}
	app.cfg.Store(cfg)
	return app
}

// Reload applies a changed config. Only the log level and the clear colour
// take effect while running.
func (app *App) Reload(cfg *config.Config) {
	old := app.cfg.Swap(cfg)

	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		app.logger.SetLevel(level)
	}
	if old.Window != cfg.Window || old.Vulkan != cfg.Vulkan {
		app.logger.Warn("window and vulkan settings apply on restart")
	}
}

func (app *App) Run(ctx context.Context) error {
	if err := uniforms.Validate(); err != nil {
		return err
	}

	defer app.cleanup()

	if err := app.initWindow(); err != nil {
		return errors.Wrap(err, "init window")
	}
	if err := app.initVulkan(); err != nil {
		return err
	}
	app.initScene()

	return app.mainLoop(ctx)
}

func (app *App) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}

	cfg := app.cfg.Load()
	window, err := sdl.CreateWindow(cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(cfg.Window.Width), int32(cfg.Window.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return err
	}
	app.window = window
	return nil
}

func (app *App) initVulkan() error {
	cfg := app.cfg.Load()

	var err error
	app.device, err = gpu.Open(app.window, gpu.Options{
		AppName:    cfg.Window.Title,
		Validation: cfg.Vulkan.Validation,
	}, app.logger)
	if err != nil {
		return errors.Wrap(err, "open device")
	}

	app.shaders, err = app.device.LoadShaders()
	if err != nil {
		return err
	}

	app.layouts, err = app.device.CreateLayouts()
	if err != nil {
		return err
	}

	backend := gpu.NewBackend(app.device, gpu.ParsePresentMode(cfg.Vulkan.PresentMode), app.shaders, app.layouts)
	app.targets = swapchain.NewManager[*gpu.Chain, *gpu.Attachment, *gpu.Graph](backend, app.logger.WithPrefix("swapchain"))

	group, err := app.targets.Create(app.drawableExtent())
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}
	images := group.Chain.ImageCount()

	app.sync = frame.NewSynchronizer(images, app.logger.WithPrefix("frame"))

	alignment, err := app.device.UniformAlignment()
	if err != nil {
		return err
	}
	alloc := app.device.UniformAllocator()
	if app.viewProjection, err = uniforms.NewRing[uniforms.ViewProjection, *gpu.HostBuffer](alloc, alignment, images); err != nil {
		return errors.Wrap(err, "view projection uniforms")
	}
	if app.light, err = uniforms.NewRing[uniforms.Light, *gpu.HostBuffer](alloc, alignment, images); err != nil {
		return errors.Wrap(err, "light uniforms")
	}
	if app.camera, err = uniforms.NewRing[uniforms.Camera, *gpu.HostBuffer](alloc, alignment, images); err != nil {
		return errors.Wrap(err, "camera uniforms")
	}

	app.presenter = gpu.NewPresenter(app.device, app.layouts, app.logger)
	return app.presenter.Rebuild(group)
}

func (app *App) initScene() {
	app.scene = scene.New()
	app.animator = scene.NewAnimator(app.scene)

	app.animator.Bind(app.scene.Add(scene.NewCube()), scene.Bobbing)
	app.animator.Bind(app.scene.Add(scene.NewCube()), scene.Orbiting)

	app.start = hrtime.Now()
	app.stats = newFrameStats(app.logger, app.start)
}

func (app *App) drawableExtent() swapchain.Extent {
	w, h := app.window.VulkanGetDrawableSize()
	return swapchain.Extent{Width: int(w), Height: int(h)}
}

func (app *App) mainLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			app.logger.Info("shutting down", "cause", context.Cause(ctx))
			return nil
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					app.rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					app.rendering = true
					app.sync.RequestRecreate()
				case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
					app.sync.RequestRecreate()
				}
			}
		}

		extent := app.drawableExtent()
		if paused(app.rendering, extent) {
			sdl.Delay(10)
			continue
		}

		if err := app.drawFrame(extent); err != nil {
			return err
		}
	}
}

// paused reports whether the loop should idle instead of drawing. Some
// window managers shrink the drawable to zero without a minimize event.
func paused(rendering bool, drawable swapchain.Extent) bool {
	return !rendering || drawable.Width == 0 || drawable.Height == 0
}

func (app *App) drawFrame(extent swapchain.Extent) error {
	if app.sync.RecreatePending() {
		ok, err := app.recreateTargets(extent)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	cfg := app.cfg.Load()
	now := hrtime.Now()
	t := (now - app.start).Seconds()

	app.animator.Update(t)
	geometry, err := scene.Flatten(app.scene.Models())
	if err != nil {
		return err
	}

	current := app.targets.Current().Extent
	vp := scene.ViewProjection(current.Width, current.Height)
	light := scene.LightAt(t)
	camera := scene.CameraAt(t)

	outcome, err := app.sync.Frame(app.presenter, func(image int) error {
		data := gpu.FrameData{
			Geometry: geometry,
			Clear:    cfg.Render.ClearColour,
		}

		var err error
		if data.ViewProjection, err = app.viewProjection.Next(vp); err != nil {
			return err
		}
		if data.Light, err = app.light.Next(light); err != nil {
			return err
		}
		if data.Camera, err = app.camera.Next(camera); err != nil {
			return err
		}

		return app.presenter.Prepare(image, data)
	})
	if err != nil {
		return err
	}

	app.stats.record(outcome, now)
	return nil
}

// recreateTargets rebuilds the swapchain group for requested. It reports
// false when the surface cannot take a swapchain yet; the old group stays
// and recreation stays pending.
func (app *App) recreateTargets(requested swapchain.Extent) (bool, error) {
	if err := app.sync.Drain(); err != nil {
		return false, err
	}
	// Presentation may still read the old images.
	if err := app.device.WaitIdle(); err != nil {
		return false, err
	}

	group, err := app.targets.Recreate(requested)
	if errors.Is(err, swapchain.ErrExtentUnsupported) {
		app.logger.Debug("swapchain recreation deferred", "requested", requested)
		return false, nil
	} else if err != nil {
		return false, errors.Wrap(err, "recreate swapchain")
	}

	images := group.Chain.ImageCount()
	if err := app.sync.Reset(images); err != nil {
		return false, err
	}

	if err := app.viewProjection.Reserve(images); err != nil {
		return false, err
	}
	if err := app.light.Reserve(images); err != nil {
		return false, err
	}
	if err := app.camera.Reserve(images); err != nil {
		return false, err
	}

	if err := app.presenter.Rebuild(group); err != nil {
		return false, errors.Wrap(err, "rebuild frame resources")
	}
	return true, nil
}

func (app *App) cleanup() {
	if app.sync != nil {
		if err := app.sync.Drain(); err != nil {
			app.logger.Error("drain frames", "err", err)
		}
	}
	if app.device != nil {
		if err := app.device.WaitIdle(); err != nil {
			app.logger.Error("wait for device", "err", err)
		}
	}

	if app.presenter != nil {
		app.presenter.Destroy()
	}
	if app.viewProjection != nil {
		app.viewProjection.Destroy()
	}
	if app.light != nil {
		app.light.Destroy()
	}
	if app.camera != nil {
		app.camera.Destroy()
	}
	if app.targets != nil {
		app.targets.Destroy()
	}
	if app.layouts != nil {
		app.layouts.Destroy()
	}
	if app.shaders != nil {
		app.shaders.Destroy()
	}
	if app.device != nil {
		app.device.Close()
	}

	if app.window != nil {
		app.window.Destroy()
	}
	sdl.Quit()
}
