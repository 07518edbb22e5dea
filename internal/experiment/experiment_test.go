package experiment_test

import (
	"context"
	"math"
	"math/cmplx"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/boldsim/internal/analysis"
	"github.com/san-kum/boldsim/internal/config"
	"github.com/san-kum/boldsim/internal/dynamo"
	"github.com/san-kum/boldsim/internal/experiment"
	"github.com/san-kum/boldsim/internal/geometry"
)

type recorder struct {
	signals []dynamo.Signal
}

func (r *recorder) OnStep(step int, t float64, s dynamo.Signal) {
	r.signals = append(r.signals, s)
}

func smallConfig(spins, steps int) *config.Config {
	cfg := config.Default()
	cfg.Spins.NumSpins = spins
	cfg.Sequence.NumSteps = steps
	if steps <= 175 {
		cfg.Sequence.Pulses[1].Step = steps / 2
	}
	return cfg
}

func run(cfg *config.Config, opts ...experiment.Option) *dynamo.Result {
	exp := experiment.New(cfg, opts...)
	Expect(exp.Setup(context.Background())).To(Succeed())
	res, err := exp.Run(context.Background())
	Expect(err).NotTo(HaveOccurred())
	return res
}

var _ = Describe("Experiment", func() {
	Describe("the spin-echo scenario", func() {
		var (
			cfg *config.Config
			rec *recorder
			res *dynamo.Result
		)

		BeforeEach(func() {
			cfg = smallConfig(2000, 600)
			rec = &recorder{}
			res = run(cfg, experiment.WithObserver(rec))
		})

		It("records one sample per step", func() {
			Expect(res.StepsTaken).To(Equal(600))
			Expect(res.Total).To(HaveLen(600))
			Expect(rec.signals).To(HaveLen(600))
		})

		It("starts fully coherent after excitation", func() {
			Expect(res.Total[0]).To(BeNumerically("~", 1, 1e-9))
		})

		It("decays over the echo train", func() {
			Expect(res.Total[599]).To(BeNumerically("<", res.Total[1]))
			Expect(res.Metrics).To(HaveKey("decay_rate"))
			Expect(math.IsNaN(res.Metrics["decay_rate"])).To(BeFalse())
			Expect(res.Metrics["echo_peak"]).To(BeNumerically(">=", res.Total[599]))
		})

		It("partitions the signal exactly into EV and IV", func() {
			for i, s := range rec.signals {
				diff := cmplx.Abs(s.EVSum + s.IVSum - s.TotalSum)
				Expect(diff).To(BeNumerically("<", 1e-9*float64(s.NumTotal())), "step %d", i)
				Expect(s.NumTotal()).To(Equal(2000))
			}
		})
	})

	It("refocuses a static field at twice the refocusing step", func() {
		cfg := smallConfig(500, 400)
		cfg.Spins.ADC = 0
		res := run(cfg)
		Expect(res.Total[250]).To(BeNumerically("<", 1-1e-6))
		Expect(res.Total[350]).To(BeNumerically("~", 1, 1e-9))
		Expect(res.Metrics["echo_peak"]).To(BeNumerically("~", 1, 1e-9))
	})

	It("is reproducible for a fixed seed", func() {
		a := run(smallConfig(300, 80))
		b := run(smallConfig(300, 80))
		Expect(a.Total).To(Equal(b.Total))
		Expect(a.EV).To(Equal(b.EV))
		Expect(a.IV).To(Equal(b.IV))

		cfg := smallConfig(300, 80)
		cfg.Seed = 2
		c := run(cfg)
		Expect(c.Total).NotTo(Equal(a.Total))
	})

	Describe("the simulator state machine", func() {
		It("moves from initialized through stepping to finalized", func() {
			exp := experiment.New(smallConfig(200, 20))
			Expect(exp.Setup(context.Background())).To(Succeed())
			sim := exp.Simulator()
			Expect(sim.Status()).To(Equal(dynamo.StatusInitialized))

			_, err := sim.Step(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(sim.Status()).To(Equal(dynamo.StatusStepping))

			first, err := sim.Walk(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(sim.Status()).To(Equal(dynamo.StatusFinalized))
			Expect(first.StepsTaken).To(Equal(20))

			_, err = sim.Step(context.Background())
			Expect(err).To(MatchError(dynamo.ErrFinalized))

			Expect(sim.Reset()).To(Succeed())
			Expect(sim.Status()).To(Equal(dynamo.StatusInitialized))
			again, err := sim.Walk(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Total).To(Equal(first.Total))
		})

		It("stops on cancellation with a partial result", func() {
			exp := experiment.New(smallConfig(100, 20))
			Expect(exp.Setup(context.Background())).To(Succeed())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			res, err := exp.Simulator().Walk(ctx)
			Expect(err).To(MatchError(dynamo.ErrContextCanceled))
			Expect(res.StepsTaken).To(Equal(0))
		})
	})

	It("keeps full signal in a voxel without vessels", func() {
		empty, err := geometry.NewContinuousVoxel(2, 0.1, 3)
		Expect(err).NotTo(HaveOccurred())
		res := run(smallConfig(200, 50), experiment.WithVoxel(empty))
		for i := range res.Total {
			Expect(res.Total[i]).To(BeNumerically("~", 1, 1e-12))
			Expect(res.EV[i]).To(BeNumerically("~", 1, 1e-12))
			Expect(res.IV[i]).To(BeZero())
		}
		Expect(res.Warnings).NotTo(BeEmpty())
		Expect(res.Warnings[0]).To(MatchError(dynamo.ErrDegenerateSignal))
	})

	It("averages repeats over consecutive seeds", func() {
		cfg := smallConfig(200, 40)
		cfg.Repeats = 3
		res := run(cfg)
		Expect(res.StepsTaken).To(Equal(40))
		Expect(res.Total[0]).To(BeNumerically("~", 1, 1e-9))
		Expect(res.Metrics).To(HaveKey("final_signal"))
	})

	It("reports cancellation of a repeated run", func() {
		cfg := smallConfig(200, 40)
		cfg.Repeats = 2
		exp := experiment.New(cfg)
		Expect(exp.Setup(context.Background())).To(Succeed())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res, err := exp.Run(ctx)
		Expect(err).To(MatchError(dynamo.ErrContextCanceled))
		Expect(res).To(BeNil())
	})

	Describe("grid methods", func() {
		It("runs the deterministic diffuser", func() {
			cfg := config.GetPreset(config.MethodDeterministic, "bessel")
			cfg.Deterministic.Grid = 64
			cfg.Sequence.NumSteps = 200
			exp := experiment.New(cfg)
			Expect(exp.Setup(context.Background())).To(Succeed())
			Expect(exp.Discrete()).NotTo(BeNil())
			Expect(exp.Discrete().N()).To(Equal(64))

			res, err := exp.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Total[0]).To(BeNumerically("~", 1, 1e-9))
			Expect(res.Total[199]).To(BeNumerically("<", 1))
			for _, v := range res.Total {
				Expect(v).To(BeNumerically("<=", 1+1e-9))
			}
		})

		It("walks spins through the discretized field", func() {
			cfg := smallConfig(300, 60)
			cfg.Method = config.MethodMonteCarloGrid
			cfg.Deterministic.Grid = 64
			exp := experiment.New(cfg)
			Expect(exp.Setup(context.Background())).To(Succeed())
			Expect(exp.Discrete()).NotTo(BeNil())
			res, err := exp.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.StepsTaken).To(Equal(60))
		})
	})

	Describe("method agreement", func() {
		It("matches Monte Carlo with the deterministic diffuser and recovers an echo", func() {
			cfg := smallConfig(3000, 400)
			cfg.Voxel.NumVessels = 20
			cfg.Groups[0].Diameters.Values = []float64{0.04}
			cfg.Deterministic.Grid = 128

			mc := experiment.New(cfg)
			Expect(mc.Setup(context.Background())).To(Succeed())
			mcRes, err := mc.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			ddCfg := cfg.Clone()
			ddCfg.Method = config.MethodDeterministic
			ddRes := run(ddCfg, experiment.WithVoxel(mc.Voxel()))

			cmp, err := analysis.Compare(mcRes.Total, ddRes.Total)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.RMS).To(BeNumerically("<", 0.03), "%v", cmp)

			for _, res := range []*dynamo.Result{mcRes, ddRes} {
				Expect(res.Total[174]).To(BeNumerically("<", res.Total[1]))
				Expect(res.Total[350]).To(BeNumerically(">", res.Total[175]))
			}
		})

		It("keeps the signal when the field index is enabled", func() {
			exact := smallConfig(400, 60)
			exact.Voxel.NumVessels = 1000
			fast := exact.Clone()
			fast.Voxel.FieldCutoff = 0.01

			indexed := experiment.New(fast)
			Expect(indexed.Setup(context.Background())).To(Succeed())
			Expect(indexed.Voxel().Accelerated()).To(BeTrue())
			fastRes, err := indexed.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			plain := experiment.New(exact)
			Expect(plain.Setup(context.Background())).To(Succeed())
			Expect(plain.Voxel().Accelerated()).To(BeFalse())
			exactRes, err := plain.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			cmp, err := analysis.Compare(fastRes.Total, exactRes.Total)
			Expect(err).NotTo(HaveOccurred())
			Expect(cmp.RMS).To(BeNumerically("<", 0.01), "%v", cmp)
		})
	})

	Describe("the axon scenario", func() {
		It("marks only blood vessels as intravascular", func() {
			positions, radii := experiment.SyntheticPacking(100, 10, 1)
			opts := experiment.DefaultAxonOptions()
			opts.CBV = 0.2
			v, blood, err := experiment.BuildAxonVoxel(positions, radii, opts)
			Expect(err).NotTo(HaveOccurred())
			Expect(v.NumVessels()).To(BeNumerically(">", 0))
			Expect(len(blood)).To(BeNumerically("<=", 20))

			isBlood := experiment.BloodPartition(blood)
			for idx := 1; idx <= v.NumVessels(); idx++ {
				if isBlood(idx) {
					Expect(v.Vessel(idx).Label).To(Equal("blood vessel"))
				} else {
					Expect(v.Vessel(idx).Label).To(Equal("axon"))
				}
			}
			Expect(isBlood(0)).To(BeFalse())

			cfg := smallConfig(300, 40)
			rec := &recorder{}
			run(cfg, experiment.WithVoxel(v), experiment.WithPartition(isBlood), experiment.WithObserver(rec))
			for _, s := range rec.signals {
				Expect(s.NumTotal()).To(Equal(300))
			}
		})

		It("reads packing tables from CSV", func() {
			dir := GinkgoT().TempDir()
			pos := filepath.Join(dir, "positions.csv")
			rad := filepath.Join(dir, "radii.csv")
			Expect(os.WriteFile(pos, []byte("0,10,20\n0,0,10\n"), 0o644)).To(Succeed())
			Expect(os.WriteFile(rad, []byte("3\n3.5\n2\n"), 0o644)).To(Succeed())

			positions, radii, err := experiment.LoadAxonTables(pos, rad)
			Expect(err).NotTo(HaveOccurred())
			Expect(positions).To(HaveLen(2))
			Expect(positions[0]).To(Equal([]float64{0, 10, 20}))
			Expect(radii).To(Equal([]float64{3, 3.5, 2}))
		})

		It("rejects an out of range CBV", func() {
			positions, radii := experiment.SyntheticPacking(4, 10, 1)
			opts := experiment.DefaultAxonOptions()
			opts.CBV = 1
			_, _, err := experiment.BuildAxonVoxel(positions, radii, opts)
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
		})
	})

	Describe("configuration errors", func() {
		It("rejects an unknown method", func() {
			cfg := smallConfig(100, 10)
			cfg.Method = "bloch"
			err := experiment.New(cfg).Setup(context.Background())
			Expect(err).To(MatchError(dynamo.ErrConfiguration))
		})

		It("refuses to run before setup", func() {
			_, err := experiment.New(smallConfig(100, 10)).Run(context.Background())
			Expect(err).To(HaveOccurred())
		})

		It("lists the registered methods", func() {
			Expect(experiment.NewRegistry().ListMethods()).To(Equal([]string{
				config.MethodDeterministic, config.MethodMonteCarlo, config.MethodMonteCarloGrid,
			}))
		})
	})

	It("leaves the caller's config untouched", func() {
		cfg := smallConfig(100, 10)
		exp := experiment.New(cfg)
		exp.Config().Spins.NumSpins = 5
		Expect(cfg.Spins.NumSpins).To(Equal(100))
		Expect(math.IsNaN(exp.Config().Voxel.CBV)).To(BeFalse())
	})
})
