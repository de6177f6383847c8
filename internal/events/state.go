package events

import (
	"sort"

	"github.com/reflective-resonance/turnengine/internal/waveform"
)

// readyWave is the orchestrator's own record of one slot's decomposed
// waves, built straight from a DecomposeResult — no parsing of filenames,
// no dependency on the engine or the pool's own types.
type readyWave struct {
	SlotID       int
	AgentID      string
	VoiceProfile string
	Wave1Abs     string
	Wave1Rel     string
	Wave1Target  int
	Wave2Abs     string
	Wave2Rel     string
	Wave2Target  int
}

func (w readyWave) toSlotWaveInfo() SlotWaveInfo {
	return SlotWaveInfo{
		SlotID:            w.SlotID,
		AgentID:           w.AgentID,
		VoiceProfile:      w.VoiceProfile,
		Wave1PathAbs:      w.Wave1Abs,
		Wave1PathRel:      w.Wave1Rel,
		Wave1TargetSlotID: w.Wave1Target,
		Wave2PathAbs:      w.Wave2Abs,
		Wave2PathRel:      w.Wave2Rel,
		Wave2TargetSlotID: w.Wave2Target,
	}
}

// sessionState mirrors the per-session readiness tracker: which slots are
// expected for each turn, which have reported decomposed waves, and
// whether the workflow-level timeout or the natural completion path has
// already emitted the batch.
type sessionState struct {
	slotIDs []int

	turn1Expected map[int]bool
	turn1Ready    map[int]readyWave

	turn2Expected map[int]bool
	turn2Ready    map[int]readyWave

	turn3Expected map[int]bool
	turn3Ready    map[int]readyWave

	dialogues []waveform.Dialogue

	workflowComplete bool
	batchEmitted     bool

	summaryReady bool
	summaryOK    bool
	summaryInfo  *FinalSummaryWaveInfo
	summaryText  string

	seq int
}

func newSessionState(slotIDs []int) *sessionState {
	s := &sessionState{
		slotIDs:       append([]int(nil), slotIDs...),
		turn1Expected: map[int]bool{},
		turn1Ready:    map[int]readyWave{},
		turn2Expected: map[int]bool{},
		turn2Ready:    map[int]readyWave{},
		turn3Expected: map[int]bool{},
		turn3Ready:    map[int]readyWave{},
	}
	for _, id := range slotIDs {
		s.turn1Expected[id] = true
		s.turn2Expected[id] = true
	}
	return s
}

func (s *sessionState) nextSeq() int {
	s.seq++
	return s.seq
}

func waveOrEmpty(paths, rels []string, idx int) (abs, rel string) {
	if idx < len(paths) {
		abs = paths[idx]
	}
	if idx < len(rels) {
		rel = rels[idx]
	}
	return
}

func (s *sessionState) toReadyWave(res waveform.DecomposeResult) readyWave {
	job := res.Job
	w1abs, w1rel := waveOrEmpty(res.WavePaths, res.WavePathsRel, 0)
	w2abs, w2rel := waveOrEmpty(res.WavePaths, res.WavePathsRel, 1)
	return readyWave{
		SlotID:       job.SlotID,
		AgentID:      job.AgentID,
		VoiceProfile: job.VoiceProfile,
		Wave1Abs:     w1abs,
		Wave1Rel:     w1rel,
		Wave1Target:  waveform.TargetSlotForWave(job.SlotID, 1),
		Wave2Abs:     w2abs,
		Wave2Rel:     w2rel,
		Wave2Target:  waveform.TargetSlotForWave(job.SlotID, 2),
	}
}

// recordResult updates readiness for a successfully or unsuccessfully
// decomposed job. Failed jobs are not marked ready; they surface as
// missing slots once the workflow timeout fires.
func (s *sessionState) recordResult(res waveform.DecomposeResult) {
	if !res.Success {
		return
	}
	job := res.Job
	w := s.toReadyWave(res)
	switch job.TurnIndex {
	case 1:
		s.turn1Ready[job.SlotID] = w
	case 2:
		s.turn2Ready[job.SlotID] = w
	case 3:
		s.turn3Ready[job.SlotID] = w
	case waveform.SummaryTurnIndex:
		s.summaryReady = true
		s.summaryOK = true
		entries := make([]FinalSummaryWaveEntry, 0, len(res.WavePaths))
		for i, p := range res.WavePaths {
			rel := ""
			if i < len(res.WavePathsRel) {
				rel = res.WavePathsRel[i]
			}
			entries = append(entries, FinalSummaryWaveEntry{
				SlotID:      i + 1,
				WavePathAbs: p,
				WavePathRel: rel,
			})
		}
		s.summaryInfo = &FinalSummaryWaveInfo{VoiceProfile: job.VoiceProfile, Waves: entries}
	}
}

func (s *sessionState) turn1Complete() bool {
	if len(s.turn1Expected) == 0 {
		return false
	}
	for id := range s.turn1Expected {
		if _, ok := s.turn1Ready[id]; !ok {
			return false
		}
	}
	return true
}

func (s *sessionState) allTurn2And3Ready() bool {
	for id := range s.turn2Expected {
		if _, ok := s.turn2Ready[id]; !ok {
			return false
		}
	}
	for id := range s.turn3Expected {
		if _, ok := s.turn3Ready[id]; !ok {
			return false
		}
	}
	return true
}

// readyDialogues returns the dialogues whose commenter and respondent
// waves have all decomposed, along with the resolved wave info.
func (s *sessionState) readyDialogues() []DialogueWavesReadyPayload {
	var out []DialogueWavesReadyPayload
	for _, d := range s.dialogues {
		if !d.HasRespondent {
			continue
		}
		commenters := make([]SlotWaveInfo, 0, len(d.Commenters))
		ready := true
		for _, c := range d.Commenters {
			w, ok := s.turn2Ready[c.SlotID]
			if !ok {
				ready = false
				break
			}
			commenters = append(commenters, w.toSlotWaveInfo())
		}
		respW, ok := s.turn3Ready[d.Respondent.SlotID]
		if !ready || !ok {
			continue
		}
		playOrder := make([]PlayOrderEntry, 0, len(d.Commenters)+1)
		for _, c := range d.Commenters {
			playOrder = append(playOrder, PlayOrderEntry{Role: "commenter", SlotID: c.SlotID})
		}
		playOrder = append(playOrder, PlayOrderEntry{Role: "respondent", SlotID: d.Respondent.SlotID})

		out = append(out, DialogueWavesReadyPayload{
			DialogueID:   d.DialogueID,
			Turns:        [2]int{2, 3},
			TargetSlotID: d.TargetSlotID,
			Commenters:   commenters,
			Respondent:   respW.toSlotWaveInfo(),
			PlayOrder:    playOrder,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetSlotID < out[j].TargetSlotID })
	return out
}

func (s *sessionState) missingTurn1SlotIDs() []int {
	var out []int
	for id := range s.turn1Expected {
		if _, ok := s.turn1Ready[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func (s *sessionState) turn1Payload() Turn1WavesReadyPayload {
	slots := make([]SlotWaveInfo, 0, len(s.turn1Ready))
	ids := make([]int, 0, len(s.turn1Ready))
	for id := range s.turn1Ready {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		slots = append(slots, s.turn1Ready[id].toSlotWaveInfo())
	}
	status := "complete"
	missing := s.missingTurn1SlotIDs()
	if len(missing) > 0 {
		status = "partial"
	}
	return Turn1WavesReadyPayload{
		TurnIndex:      1,
		Status:         status,
		SlotsExpected:  len(s.turn1Expected),
		SlotsReady:     len(s.turn1Ready),
		Slots:          slots,
		MissingSlotIDs: missing,
	}
}
