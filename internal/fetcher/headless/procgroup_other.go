//go:build !unix

package headless

import "github.com/chromedp/chromedp"

func platformOptions() []chromedp.ExecAllocatorOption { return nil }
