// Package browser drives headless Chrome over the DevTools protocol.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	domain "github.com/bryanwahyu/lucy-scan/internal/domain/scans"
)

// Options tune the browser launch and the page load.
type Options struct {
	ExecPath          string
	Headless          bool
	NoSandbox         bool
	UserAgent         string
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Logger            *slog.Logger
}

// Chrome opens every page in its own browser process, so one scan cannot
// leak cookies or storage into another.
type Chrome struct {
	opts Options
}

func New(opts Options) *Chrome {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Chrome{opts: opts}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", c.opts.Headless),
		chromedp.DisableGPU,
		chromedp.WindowSize(1366, 900),
	)
	if c.opts.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if c.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.opts.ExecPath))
	}
	if c.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
	}
	return opts
}

// Open launches a browser, navigates to url and waits for the document body
// plus the settle delay. On any error the browser is already torn down.
func (c *Chrome) Open(ctx context.Context, url string) (domain.Page, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	p := &Page{ctx: tabCtx, cancel: func() { cancelTab(); cancelAlloc() }}

	// the first Run starts the browser; it must use the tab context itself so
	// the navigation timeout below does not own the browser lifetime
	if err := chromedp.Run(tabCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(tabCtx, c.opts.NavigationTimeout)
	defer cancelNav()
	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if c.opts.SettleDelay > 0 {
		actions = append(actions, chromedp.Sleep(c.opts.SettleDelay))
	}
	start := time.Now()
	if err := chromedp.Run(navCtx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("navigate: %w", err)
	}
	c.opts.Logger.Debug("page loaded", "url", url, "elapsed", time.Since(start))
	return p, nil
}

// Page is one loaded tab.
type Page struct {
	ctx    context.Context
	cancel func()
	once   sync.Once
}

// bind derives a context that ends when either the tab or ctx ends.
func (p *Page) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() { stop(); cancel() }
}

func (p *Page) Evaluate(ctx context.Context, expr string, out any) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
}

func (p *Page) Poll(ctx context.Context, expr string, out any) error {
	runCtx, cancel := p.bind(ctx)
	defer cancel()
	opts := []chromedp.PollOption{chromedp.WithPollingInterval(100 * time.Millisecond)}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, chromedp.WithPollingTimeout(time.Until(deadline)))
	}
	return chromedp.Run(runCtx, chromedp.Poll(expr, out, opts...))
}

// Close cancels the tab and the allocator, killing the browser process.
func (p *Page) Close() error {
	p.once.Do(p.cancel)
	return nil
}
