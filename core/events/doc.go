// Package events defines the typed orchestration event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - orchestrator.*
//   - user_input.*
//   - assistant_response.*
//   - tool_call.*
//   - assistant_speech.*
//   - assistant_playback.*
//   - turn_state.*
//
// orchestrator events
//
//   - StateChanged (orchestrator.state_changed): the orchestrator moved to a
//     new state; carries both state names.
//   - DeviceFailed (orchestrator.device_failed): the microphone failed
//     mid-stream and is being reopened.
//   - DeviceRecovered (orchestrator.device_recovered): the microphone was
//     reopened after a failure.
//
// user_input events
//
//   - WakeWordDetected (user_input.wake_word_detected): a wake word model
//     fired.
//   - UserSpeechStarted (user_input.speech_started): voice activity began
//     while listening.
//   - CaptureStarted (user_input.capture_started): a recording session
//     started, seeded with pre-roll.
//   - CaptureFinished (user_input.capture_finished): a segment was captured;
//     includes the stop reason and file path.
//   - CaptureEmpty (user_input.capture_empty): the session ended without
//     audio.
//   - UserTranscriptFinal (user_input.transcript_final): terminal transcript
//     for the utterance.
//
// assistant_response events
//
//   - AssistantResponseStarted (assistant_response.started): the language
//     model was prompted.
//   - AssistantResponseFinal (assistant_response.final): the reply text.
//
// tool_call events
//
//   - ToolCallStarted (tool_call.started): tool execution started.
//   - ToolCallCompleted (tool_call.completed): tool execution completed.
//   - ToolCallFailed (tool_call.failed): tool execution failed.
//
// assistant_speech events
//
//   - AssistantSpeechSynthesized (assistant_speech.synthesized): the reply was
//     synthesized to an audio file.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): playback started.
//   - AssistantPlaybackEnded (assistant_playback.ended): playback ended,
//     naturally or by interruption.
//
// turn_state events
//
//   - TurnStarted (turn_state.started): a capture began a new turn.
//   - TurnCompleted (turn_state.completed): the reply was spoken.
//   - TurnSkipped (turn_state.skipped): nothing usable was heard.
//   - TurnFailed (turn_state.failed): a stage failed; the turn was aborted.
//   - TurnCancelled (turn_state.cancelled): the turn was interrupted.
package events
