//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"log/slog"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"cardcanvas/internal/crash"
	"cardcanvas/internal/domain"
	"cardcanvas/internal/editor"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/version"
)

// Run starts the desktop card editor and blocks until the window closes.
func Run(opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")
	if opts.KV == nil {
		return errors.New("ui: no storage configured")
	}
	if opts.Exporter == nil {
		return errors.New("ui: no exporter configured")
	}

	ctx := context.Background()
	n := &uiNotifier{}
	nav := opts.Navigator
	if nav == nil {
		nav = editor.NavigatorFunc(func(_ context.Context, payload []byte) error {
			l.Info("card finished", slog.Int("bytes", len(payload)))
			return nil
		})
	}
	wf := editor.NewWorkflow(ctx, opts.KV, opts.Editor, editor.Deps{
		Exporter:  opts.Exporter,
		Navigator: nav,
		Notifier:  n,
		Metrics:   opts.Metrics,
		Telemetry: opts.Telemetry,
	})
	defer crash.Recover(crash.Target{Dir: opts.DataDir, Session: wf.ID(), Save: wf})

	fyneApp := app.NewWithID("cardcanvas")
	w := fyneApp.NewWindow("Card Canvas " + version.String())
	// Restore window size from preferences (with sane minimums)
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	if winW < 800 {
		winW = 800
	}
	if winH < 600 {
		winH = 600
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	faceLabel := widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	n.w, n.status = w, status

	cc := NewCardCanvas(wf.Current(), opts.Editor)
	cc.OnDoubleTap = func() { showStyleDialog(w, cc.Session(), n) }

	var backBtn, nextBtn *widget.Button
	syncFace := func() {
		s := wf.Current()
		if cc.Session() != s {
			cc.SetSession(s)
		}
		faceLabel.SetText(faceTitle(s.Face()))
		if s.Face() == domain.FaceBack {
			backBtn.Enable()
			nextBtn.SetText("Finish")
		} else {
			backBtn.Disable()
			nextBtn.SetText("Next")
		}
		if wf.Finished() {
			nextBtn.Disable()
			backBtn.Disable()
		}
	}

	addText := widget.NewButton("Add Text", func() {
		id := cc.Session().AddText()
		l.Debug("text added", slog.Int("id", id))
	})
	addImage := widget.NewButton("Add Image", func() {
		s := cc.Session()
		fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			pick := editor.PickerFunc(func(context.Context) (string, error) {
				switch {
				case err != nil && errors.Is(err, fs.ErrPermission):
					return "", editor.ErrPermissionDenied
				case err != nil:
					return "", err
				case rc == nil:
					return "", editor.ErrPickCancelled
				}
				defer func() { _ = rc.Close() }()
				return rc.URI().String(), nil
			})
			if _, perr := s.AddImage(ctx, pick, n); perr != nil {
				l.Warn("add image failed", slog.Any("err", perr))
			}
		}, w)
		fd.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}))
		fd.Show()
	})
	deleteBtn := widget.NewButton("Delete", func() {
		if !cc.Session().DeleteSelected() {
			status.SetText("Nothing selected")
		}
	})
	styleBtn := widget.NewButton("Style…", func() { showStyleDialog(w, cc.Session(), n) })
	resetView := widget.NewButton("Reset View", func() {
		cc.Session().Viewport().Reset()
		cc.Refresh()
	})
	backBtn = widget.NewButton("Back", func() {
		if wf.Back(ctx) {
			syncFace()
		}
	})
	nextBtn = widget.NewButton("Next", nil)
	// Advance holds the workflow while it exports and submits; the toolbar
	// works on the canvas' session so the window stays responsive.
	nextBtn.OnTapped = func() {
		nextBtn.Disable()
		backBtn.Disable()
		status.SetText("Exporting " + string(cc.Session().Face()) + "…")
		go func() {
			err := wf.Advance(ctx)
			fyne.Do(func() {
				nextBtn.Enable()
				syncFace()
				switch {
				case err != nil:
					status.SetText("Could not continue")
				case wf.Finished():
					status.SetText("Card submitted")
					dialog.ShowInformation("Card Canvas", "Your card has been submitted.", w)
				default:
					status.SetText("Ready")
				}
			})
		}()
	}

	tools := container.NewHBox(faceLabel, widget.NewSeparator(), addText, addImage, deleteBtn, styleBtn, resetView)
	nav2 := container.NewHBox(backBtn, nextBtn)
	top := container.NewBorder(nil, nil, nil, nav2, tools)
	w.SetContent(container.NewBorder(top, status, nil, nil, cc))
	syncFace()

	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyDelete, fyne.KeyBackspace:
			cc.Session().DeleteSelected()
		case fyne.KeyEscape:
			cc.Session().Router().Cancel()
			cc.Session().Store().DeselectAll()
		case fyne.KeyReturn, fyne.KeyEnter:
			showStyleDialog(w, cc.Session(), n)
		}
	})

	// Persist preferences and pending writes on close
	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := wf.Close(cctx); err != nil && wf.Dirty() {
			l.Error("flush on close failed", slog.Any("err", err))
			dialog.ShowConfirm("Unsaved changes",
				"The card could not be saved. Close anyway and lose the latest changes?",
				func(ok bool) {
					if ok {
						w.Close()
					}
				}, w)
			return
		}
		w.Close()
	})

	w.ShowAndRun()
	return nil
}

func faceTitle(f domain.Face) string {
	switch f {
	case domain.FaceBack:
		return "Back of card"
	default:
		return "Front of card"
	}
}

// uiNotifier shows notices in a dialog and mirrors them in the status bar.
type uiNotifier struct {
	w      fyne.Window
	status *widget.Label
}

func (n *uiNotifier) Notify(msg string) {
	applog.WithComponent("ui").Info("notice", slog.String("msg", msg))
	if n.w == nil {
		return
	}
	fyne.Do(func() {
		n.status.SetText(msg)
		dialog.ShowInformation("Card Canvas", msg, n.w)
	})
}

// showStyleDialog edits the selected text element. Changes stay local to the
// dialog until Save.
func showStyleDialog(w fyne.Window, s *editor.Session, n editor.Notifier) {
	ed, err := s.EditSelected()
	if err != nil {
		n.Notify("Select a text element to change its style.")
		return
	}
	st := ed.Style()

	entry := widget.NewMultiLineEntry()
	entry.SetText(ed.Text())
	entry.SetMinRowsVisible(3)
	entry.OnChanged = func(v string) { _ = ed.SetText(v) }

	bold := widget.NewCheck("Bold", nil)
	bold.SetChecked(st.Bold)
	bold.OnChanged = func(bool) { _ = ed.ToggleBold() }
	italic := widget.NewCheck("Italic", nil)
	italic.SetChecked(st.Italic)
	italic.OnChanged = func(bool) { _ = ed.ToggleItalic() }
	underline := widget.NewCheck("Underline", nil)
	underline.SetChecked(st.Underline)
	underline.OnChanged = func(bool) { _ = ed.ToggleUnderline() }

	swatch := canvas.NewRectangle(swatchColor(st.Color))
	swatch.SetMinSize(fyne.NewSize(28, 28))
	colors := container.NewGridWithColumns(len(domain.Palette))
	for _, hex := range domain.Palette {
		hex := hex
		b := widget.NewButton("", func() {
			if err := ed.SetColor(hex); err == nil {
				swatch.FillColor = swatchColor(hex)
				swatch.Refresh()
			}
		})
		chip := canvas.NewRectangle(swatchColor(hex))
		chip.SetMinSize(fyne.NewSize(24, 24))
		colors.Add(container.NewStack(b, container.NewPadded(chip)))
	}

	form := container.NewVBox(
		entry,
		container.NewHBox(bold, italic, underline),
		container.NewBorder(nil, nil, widget.NewLabel("Color"), swatch, colors),
	)
	d := dialog.NewCustomConfirm(fmt.Sprintf("Text #%d", ed.ID()), "Save", "Cancel", form, func(ok bool) {
		if !ok {
			ed.Cancel()
			return
		}
		if err := s.SaveStyle(ed); err != nil {
			n.Notify("The text could not be saved: " + err.Error())
		}
	}, w)
	d.Resize(fyne.NewSize(520, 300))
	d.Show()
}

func swatchColor(hex string) color.Color {
	c, err := domain.ParseHexColor(hex)
	if err != nil {
		return color.Black
	}
	return c
}
