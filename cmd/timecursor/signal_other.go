//go:build !unix

package main

import "context"

func notifyPause(context.Context, func()) {}
