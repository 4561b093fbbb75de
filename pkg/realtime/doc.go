// Package realtime implements the streaming speech-recognition session: a
// signed WebSocket bootstrap, a phase-gated lifecycle, and in-order dispatch
// of transcription events to a caller-supplied listener.
//
// A session moves through Created, Connecting, Active, Stopping and Closed,
// with Errored absorbing any transport, protocol or service failure. Start
// returns once the service acknowledges the session, Write streams raw audio
// in strict call order, and Stop returns once the service delivers the final
// recognition-complete frame.
//
//	cred := credential.New(appID, sdkAppID, secretKey)
//	rec, err := realtime.NewRecognizer(cred, realtime.Model16kZH, listener)
//	if err != nil {
//		// handle
//	}
//	if err := rec.Start(ctx); err != nil {
//		// handle
//	}
//	for chunk := range chunks {
//		if err := rec.Write(chunk); err != nil {
//			break
//		}
//	}
//	if err := rec.Stop(ctx); err != nil {
//		// handle
//	}
//
// One Recognizer drives exactly one session over exactly one connection;
// recognizing again means building a fresh Recognizer.
package realtime
